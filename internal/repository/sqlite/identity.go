package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/sakif/snuffspec/internal/apperror"
	"github.com/sakif/snuffspec/internal/auth"
	"github.com/sakif/snuffspec/internal/gateway"
	"github.com/sakif/snuffspec/internal/model"
)

var (
	_ gateway.Authenticator = (*DB)(nil)
	_ gateway.IdentityAdmin = (*DB)(nil)
)

// CodeDelivery hands a freshly issued code to the person who asked for it.
type CodeDelivery interface {
	DeliverCode(ctx context.Context, email, code string) error
}

// LogDelivery writes codes to the log. Development only.
type LogDelivery struct {
	Logger *slog.Logger
}

func (d LogDelivery) DeliverCode(ctx context.Context, email, code string) error {
	d.Logger.InfoContext(ctx, "one-time code issued",
		slog.String("email", email),
		slog.String("code", code),
	)
	return nil
}

// Gateway errors use the hosted gateway's wording, so the OTP controller
// reads both implementations the same way.
func errSignupsNotAllowed() error {
	return &gateway.Error{
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "otp_disabled",
		Message:    "Signups not allowed for otp",
	}
}

func errCodeInvalid() error {
	return &gateway.Error{
		StatusCode: http.StatusForbidden,
		Code:       "otp_expired",
		Message:    "Token has expired or is invalid",
	}
}

func errResendTooSoon(seconds int64) error {
	return &gateway.Error{
		StatusCode: http.StatusTooManyRequests,
		Code:       "over_email_send_rate_limit",
		Message:    fmt.Sprintf("For security purposes, you can only request this after %d seconds.", seconds),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SendCode issues a new code for email and delivers it.
//
// A second request inside the resend window is refused with the remaining
// wait in the message text. Unknown emails are refused unless
// opts.AllowNewUser is set, in which case an identity is created first.
func (db *DB) SendCode(ctx context.Context, email string, opts gateway.SendOptions) error {
	email = normalizeEmail(email)

	if _, err := db.FindIdentityByEmail(ctx, email); err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		if !opts.AllowNewUser {
			return errSignupsNotAllowed()
		}
		if _, err := db.CreateIdentity(ctx, email, ""); err != nil {
			return err
		}
	}

	now := db.now()

	var sentAt int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT sent_at FROM otp_challenges WHERE email = ?`, email,
	).Scan(&sentAt)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("sqlite: looking up challenge for %s: %w", email, err)
	}
	if err == nil {
		window := int64(db.resendWindow.Seconds())
		if elapsed := now.Unix() - sentAt; elapsed < window {
			return errResendTooSoon(window - elapsed)
		}
	}

	code, err := db.codes.Generate()
	if err != nil {
		return err
	}
	hash, err := db.codes.Hash(code)
	if err != nil {
		return err
	}

	// A new code replaces the old challenge and resets the attempt counter.
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO otp_challenges (email, code_hash, sent_at, expires_at, attempts)
		 VALUES (?, ?, ?, ?, 0)
		 ON CONFLICT(email) DO UPDATE SET
		   code_hash = excluded.code_hash,
		   sent_at = excluded.sent_at,
		   expires_at = excluded.expires_at,
		   attempts = 0`,
		email, hash, now.Unix(), now.Add(db.codeTTL).Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: storing challenge for %s: %w", email, err)
	}

	if err := db.sender.DeliverCode(ctx, email, code); err != nil {
		return fmt.Errorf("sqlite: delivering code: %w", err)
	}
	return nil
}

// VerifyCode checks code against the stored challenge for email.
//
// A correct code consumes the challenge. A wrong one counts an attempt;
// after MaxVerifyAttempts the challenge is burned and the person must ask
// for a new code.
func (db *DB) VerifyCode(ctx context.Context, email, code string) (*model.Identity, error) {
	email = normalizeEmail(email)

	var (
		hash      string
		expiresAt int64
		attempts  int
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT code_hash, expires_at, attempts FROM otp_challenges WHERE email = ?`, email,
	).Scan(&hash, &expiresAt, &attempts)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errCodeInvalid()
		}
		return nil, fmt.Errorf("sqlite: loading challenge for %s: %w", email, err)
	}

	if db.now().Unix() >= expiresAt || attempts >= MaxVerifyAttempts {
		if err := db.deleteChallenge(ctx, email); err != nil {
			return nil, err
		}
		return nil, errCodeInvalid()
	}

	if err := db.codes.Verify(hash, code); err != nil {
		if !errors.Is(err, auth.ErrCodeMismatch) {
			return nil, err
		}
		_, err := db.conn.ExecContext(ctx,
			`UPDATE otp_challenges SET attempts = attempts + 1 WHERE email = ?`, email,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: counting attempt for %s: %w", email, err)
		}
		return nil, errCodeInvalid()
	}

	if err := db.deleteChallenge(ctx, email); err != nil {
		return nil, err
	}

	identity, err := db.FindIdentityByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading identity after verify: %w", err)
	}
	return identity, nil
}

func (db *DB) deleteChallenge(ctx context.Context, email string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM otp_challenges WHERE email = ?`, email)
	if err != nil {
		return fmt.Errorf("sqlite: deleting challenge for %s: %w", email, err)
	}
	return nil
}

// PurgeExpired deletes challenges past their expiry and returns how many went.
func (db *DB) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM otp_challenges WHERE expires_at <= ?`, db.now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: purging expired challenges: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}

// =========================================================================
// IDENTITY ADMIN
// =========================================================================

// CreateIdentity creates a confirmed identity. IDs are UUIDs, the same shape
// the hosted gateway hands out.
func (db *DB) CreateIdentity(ctx context.Context, email, fullName string) (*model.Identity, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}

	identity := &model.Identity{ID: uuid.NewString(), Email: email}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO identities (id, email, full_name, created_at) VALUES (?, ?, ?, ?)`,
		identity.ID, identity.Email, strings.TrimSpace(fullName), db.now(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, &gateway.Error{
				StatusCode: http.StatusUnprocessableEntity,
				Code:       "email_exists",
				Message:    "A user with this email address has already been registered",
			}
		}
		return nil, fmt.Errorf("sqlite: creating identity %s: %w", email, err)
	}

	return identity, nil
}

// DeleteIdentity removes the identity. Its profile and records go with it
// (ON DELETE CASCADE), and so does any outstanding challenge.
func (db *DB) DeleteIdentity(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM otp_challenges WHERE email = (SELECT email FROM identities WHERE id = ?)`, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting challenges for identity %s: %w", id, err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM identities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting identity %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing identity delete: %w", err)
	}
	return nil
}

func (db *DB) FindIdentityByEmail(ctx context.Context, email string) (*model.Identity, error) {
	email = normalizeEmail(email)

	var identity model.Identity
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, email FROM identities WHERE email = ?`, email,
	).Scan(&identity.ID, &identity.Email)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: finding identity %s: %w", email, err)
	}
	return &identity, nil
}

func (db *DB) ListIdentities(ctx context.Context) ([]model.Identity, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, email FROM identities ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing identities: %w", err)
	}
	defer rows.Close()

	var identities []model.Identity
	for rows.Next() {
		var i model.Identity
		if err := rows.Scan(&i.ID, &i.Email); err != nil {
			return nil, fmt.Errorf("sqlite: scanning identity row: %w", err)
		}
		identities = append(identities, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating identities: %w", err)
	}
	return identities, nil
}
