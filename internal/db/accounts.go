package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/switchboardhq/switchboard/internal/errs"
	"github.com/switchboardhq/switchboard/internal/models"
)

// ErrAccountExists is returned when the API key already holds the same
// platform account for the user.
var ErrAccountExists = fmt.Errorf("%w: account already connected", errs.ErrConflict)

const accountColumns = `id, api_key_id, user_id, platform, platform_account_id, platform_account_name,
	access_token_ciphertext, access_token_iv, access_token_tag,
	refresh_token_ciphertext, refresh_token_iv, refresh_token_tag,
	token_expires_at, metadata, status, created_at, updated_at`

// CreateSocialAccount inserts a connected account. CreatedAt and UpdatedAt
// are set to now.
func CreateSocialAccount(d *sql.DB, a *models.SocialAccount) error {
	now := time.Now().Unix()
	a.CreatedAt, a.UpdatedAt = now, now
	if a.Status == "" {
		a.Status = models.AccountActive
	}
	if a.Metadata == "" {
		a.Metadata = "{}"
	}
	rc, riv, rtag := refreshColumns(a.RefreshToken)
	_, err := d.Exec(`INSERT INTO social_accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.APIKeyID, a.UserID, a.Platform, a.PlatformAccountID, a.PlatformAccountName,
		a.AccessToken.Ciphertext, a.AccessToken.IV, a.AccessToken.Tag,
		rc, riv, rtag,
		a.TokenExpiresAt, a.Metadata, a.Status, a.CreatedAt, a.UpdatedAt,
	)
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) && sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return ErrAccountExists
	}
	return err
}

// GetSocialAccount retrieves an account by ID.
func GetSocialAccount(d *sql.DB, id string) (*models.SocialAccount, error) {
	row := d.QueryRow("SELECT "+accountColumns+" FROM social_accounts WHERE id = ?", id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListSocialAccounts returns the accounts owned by an API key, optionally
// filtered by user ID, newest first.
func ListSocialAccounts(d *sql.DB, apiKeyID int64, userID string) ([]models.SocialAccount, error) {
	query := "SELECT " + accountColumns + " FROM social_accounts WHERE api_key_id = ?"
	args := []any{apiKeyID}
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := d.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.SocialAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// UpdateSocialAccountTokens replaces the stored credentials. A nil refresh
// token keeps the existing one.
func UpdateSocialAccountTokens(d *sql.DB, id string, access models.EncryptedColumns, refresh *models.EncryptedColumns, expiresAt *int64) error {
	rc, riv, rtag := refreshColumns(refresh)
	_, err := d.Exec(`UPDATE social_accounts SET
		access_token_ciphertext = ?, access_token_iv = ?, access_token_tag = ?,
		refresh_token_ciphertext = COALESCE(?, refresh_token_ciphertext),
		refresh_token_iv = COALESCE(?, refresh_token_iv),
		refresh_token_tag = COALESCE(?, refresh_token_tag),
		token_expires_at = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		access.Ciphertext, access.IV, access.Tag,
		rc, riv, rtag,
		expiresAt, models.AccountActive, time.Now().Unix(), id,
	)
	return err
}

// SetSocialAccountStatus updates the account status.
func SetSocialAccountStatus(d *sql.DB, id, status string) error {
	_, err := d.Exec("UPDATE social_accounts SET status = ?, updated_at = ? WHERE id = ?", status, time.Now().Unix(), id)
	return err
}

// DeleteSocialAccount removes an account and reports whether it existed.
func DeleteSocialAccount(d *sql.DB, id string) (bool, error) {
	res, err := d.Exec("DELETE FROM social_accounts WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (*models.SocialAccount, error) {
	var a models.SocialAccount
	var rc, riv, rtag sql.NullString
	err := s.Scan(&a.ID, &a.APIKeyID, &a.UserID, &a.Platform, &a.PlatformAccountID, &a.PlatformAccountName,
		&a.AccessToken.Ciphertext, &a.AccessToken.IV, &a.AccessToken.Tag,
		&rc, &riv, &rtag,
		&a.TokenExpiresAt, &a.Metadata, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if rc.Valid && riv.Valid && rtag.Valid {
		a.RefreshToken = &models.EncryptedColumns{Ciphertext: rc.String, IV: riv.String, Tag: rtag.String}
	}
	return &a, nil
}

func refreshColumns(c *models.EncryptedColumns) (ciphertext, iv, tag *string) {
	if c == nil {
		return nil, nil, nil
	}
	return &c.Ciphertext, &c.IV, &c.Tag
}
