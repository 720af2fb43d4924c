// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eventroller/eventroller/internal/models"
)

const activistColumns = `id, created_at, updated_at,
	member_system, member_system_pk, name, email, hashed_email, phone`

func scanActivist(row rowScanner) (*models.Activist, error) {
	a := &models.Activist{}
	err := row.Scan(
		&a.ID, &a.CreatedAt, &a.UpdatedAt,
		&a.MemberSystem, &a.MemberSystemPK, &a.Name, &a.Email, &a.HashedEmail, &a.Phone,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetActivist fetches one activist by internal id.
func (db *DB) GetActivist(ctx context.Context, id int64) (*models.Activist, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	a, err := scanActivist(db.conn.QueryRowContext(ctx,
		`SELECT `+activistColumns+` FROM activists WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get activist %d: %w", id, err)
	}
	return a, nil
}

// GetActivistsBySystemPKs returns stored activists for a member system
// keyed by their vendor pk.
func (db *DB) GetActivistsBySystemPKs(ctx context.Context, system string, pks []string) (map[string]*models.Activist, error) {
	result := make(map[string]*models.Activist, len(pks))
	if len(pks) == 0 {
		return result, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(pks)), ",")
	query := `SELECT ` + activistColumns + ` FROM activists
		WHERE member_system = ? AND member_system_pk IN (` + placeholders + `)`

	args := make([]interface{}, 0, len(pks)+1)
	args = append(args, system)
	for _, pk := range pks {
		args = append(args, pk)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activists: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanActivist(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activist: %w", err)
		}
		result[a.MemberSystemPK] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activists: %w", err)
	}
	return result, nil
}

// InsertActivist inserts a new host identity and fills in the id.
func (db *DB) InsertActivist(ctx context.Context, a *models.Activist) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO activists (created_at, updated_at, member_system, member_system_pk, name, email, hashed_email, phone)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		now, now, a.MemberSystem, a.MemberSystemPK, a.Name, a.Email, a.HashedEmail, a.Phone,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("failed to insert activist: %w", err)
	}
	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

// UpdateActivist overwrites the contact fields of an existing identity.
func (db *DB) UpdateActivist(ctx context.Context, a *models.Activist) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	result, err := db.conn.ExecContext(ctx,
		`UPDATE activists SET updated_at = ?, name = ?, email = ?, hashed_email = ?, phone = ? WHERE id = ?`,
		now, a.Name, a.Email, a.HashedEmail, a.Phone, a.ID)
	if err != nil {
		return fmt.Errorf("failed to update activist %d: %w", a.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("activist %d: %w", a.ID, ErrNotFound)
	}
	a.UpdatedAt = now
	return nil
}
