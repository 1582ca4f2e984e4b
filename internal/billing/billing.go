// Package billing implements the credits debit/refund contract described in
// SPEC_FULL.md §4.11: required_credits = max(min_credits, ceil(duration/60
// * credits_per_minute)), deducted atomically before the audio stage, with
// a best-effort refund on later failure.
package billing

import (
	"context"
	"database/sql"
	"math"

	"github.com/clipforge/shorts-worker/internal/werror"
)

// RequiredCredits computes the credits a job of durationSeconds must debit,
// per the formula above. With the shipped defaults (creditsPerMinute=1.0,
// minCredits=1) this reduces to max(1, ceil(duration_seconds/60)).
func RequiredCredits(durationSeconds, creditsPerMinute float64, minCredits int) int {
	credits := int(math.Ceil(durationSeconds / 60.0 * creditsPerMinute))
	if credits < minCredits {
		return minCredits
	}
	return credits
}

// Debit atomically deducts credits from userID, failing with
// InsufficientCredits if the balance can't cover it. The UPDATE's own WHERE
// clause is the atomicity boundary; no separate SELECT precedes it.
func Debit(ctx context.Context, db *sql.DB, userID int64, credits int) error {
	res, err := db.ExecContext(ctx,
		`UPDATE users SET credits = credits - $1 WHERE id = $2 AND credits >= $1`,
		credits, userID)
	if err != nil {
		return werror.Wrap(werror.DBFailure, "billing", err, "debiting credits")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return werror.Wrap(werror.DBFailure, "billing", err, "reading debit result")
	}
	if n == 0 {
		return werror.New(werror.InsufficientCredits, "billing", "insufficient credits for job")
	}
	return nil
}

// Refund credits back to userID. Best-effort: failures are returned for the
// caller to log, never to crash the runner or retry.
func Refund(ctx context.Context, db *sql.DB, userID int64, credits int) error {
	_, err := db.ExecContext(ctx, `UPDATE users SET credits = credits + $1 WHERE id = $2`, credits, userID)
	if err != nil {
		return werror.Wrap(werror.DBFailure, "billing", err, "refunding credits")
	}
	return nil
}
