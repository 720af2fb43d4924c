// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package syncer

import (
	"strings"

	"github.com/eventroller/eventroller/internal/models"
)

// LikelySame reports whether two host identities probably denote the same
// person: any matching non-empty signal of {id, email, hashed email,
// phone}, or the same (source, vendor pk) pair.
//
// Vendor contact data is frequently incomplete or inconsistent per
// record, so identity is established by best-available signal, not by
// requiring all fields to agree. Deliberately permissive: a false merge
// costs less than duplicate host explosion.
func LikelySame(a, b *models.Activist) bool {
	if a == nil || b == nil {
		return false
	}
	if a.ID != 0 && a.ID == b.ID {
		return true
	}
	if a.Email != "" && strings.EqualFold(a.Email, b.Email) {
		return true
	}
	if a.HashedEmail != "" && a.HashedEmail == b.HashedEmail {
		return true
	}
	if a.Phone != "" && a.Phone == b.Phone {
		return true
	}
	if a.MemberSystem != "" && a.MemberSystemPK != "" &&
		a.MemberSystem == b.MemberSystem && a.MemberSystemPK == b.MemberSystemPK {
		return true
	}
	return false
}
