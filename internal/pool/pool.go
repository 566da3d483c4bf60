// Package pool hands out addresses of the managed subnet.
//
// Every address of the subnet except the gateway is a row in
// wireguard_ip_pool. Reservation flips the row's assigned flag inside a
// locked transaction guarded by a conditional UPDATE, so two reservers can
// never claim the same row: the loser re-reads and takes the next candidate.
package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wgprov/internal/apperr"
	"wgprov/internal/models"
)

const (
	batchSize          = 300
	defaultMaxAttempts = 64
)

var (
	errClaimLost   = errors.New("pool: claim lost to a concurrent reserver")
	errNoCandidate = errors.New("pool: no unassigned row")
)

type Pool struct {
	db          *gorm.DB
	maxAttempts int
}

func New(db *gorm.DB) *Pool {
	return &Pool{db: db, maxAttempts: defaultMaxAttempts}
}

// Stats — заполненность пула.
type Stats struct {
	Total    int64 `json:"total"`
	Free     int64 `json:"free"`
	Assigned int64 `json:"assigned"`
}

// Populate inserts every address of subnet that is not in the pool yet and
// returns how many rows were added. Existing rows keep their assigned flag.
func (p *Pool) Populate(ctx context.Context, subnet string) (int, error) {
	hosts, err := Hosts(subnet)
	if err != nil {
		return 0, err
	}
	if len(hosts) == 0 {
		return 0, nil
	}

	entries := make([]models.AddressPoolEntry, 0, len(hosts))
	for _, h := range hosts {
		entries = append(entries, models.AddressPoolEntry{Address: h.String(), Ordinal: int64(ordinal(h))})
	}

	res := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&entries, batchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("populate pool from %s: %w", subnet, res.Error)
	}
	return int(res.RowsAffected), nil
}

// Reserve claims requested, or the lowest free address when requested is
// empty. An explicit address that is unknown or taken fails with
// AddressUnavailable and leaves the pool untouched.
func (p *Pool) Reserve(ctx context.Context, requested string) (string, error) {
	if strings.TrimSpace(requested) != "" {
		return p.reserveExact(ctx, requested)
	}
	return p.reserveNext(ctx)
}

func (p *Pool) reserveExact(ctx context.Context, requested string) (string, error) {
	addr, err := Normalize(strings.TrimSpace(requested))
	if err != nil {
		return "", apperr.Wrap(apperr.KindAddressUnavailable, err, "reserve %s", requested)
	}

	res := p.db.WithContext(ctx).
		Model(&models.AddressPoolEntry{}).
		Where("address = ? AND assigned = ?", addr.String(), false).
		Update("assigned", true)
	if res.Error != nil {
		return "", fmt.Errorf("reserve %s: %w", addr, res.Error)
	}
	if res.RowsAffected == 0 {
		return "", apperr.New(apperr.KindAddressUnavailable, "address %s is not in the pool or already assigned", addr)
	}
	return addr.String(), nil
}

func (p *Pool) reserveNext(ctx context.Context) (string, error) {
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		var picked string
		err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var e models.AddressPoolEntry
			// FOR UPDATE без SKIP LOCKED: конкурент ждёт, а не перескакивает строку.
			res := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("assigned = ?", false).
				Order("ordinal").
				Limit(1).
				Find(&e)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errNoCandidate
			}

			upd := tx.Model(&models.AddressPoolEntry{}).
				Where("address = ? AND assigned = ?", e.Address, false).
				Update("assigned", true)
			if upd.Error != nil {
				return upd.Error
			}
			if upd.RowsAffected == 0 {
				return errClaimLost
			}
			picked = e.Address
			return nil
		})

		switch {
		case err == nil:
			return picked, nil
		case errors.Is(err, errClaimLost):
			continue
		case errors.Is(err, errNoCandidate):
			// READ COMMITTED может отбросить строку, перехваченную конкурентом.
			free, cerr := p.countFree(ctx)
			if cerr != nil {
				return "", cerr
			}
			if free == 0 {
				return "", apperr.New(apperr.KindPoolExhausted, "no free address left in the pool")
			}
		default:
			return "", fmt.Errorf("reserve next address: %w", err)
		}
	}
	return "", apperr.New(apperr.KindPoolExhausted, "no free address claimed after %d attempts", p.maxAttempts)
}

// Release marks address free. Releasing a free or unknown address is a no-op.
func (p *Pool) Release(ctx context.Context, address string) error {
	addr, err := Normalize(strings.TrimSpace(address))
	if err != nil {
		return apperr.Wrap(apperr.KindInvalidArgument, err, "release %s", address)
	}
	res := p.db.WithContext(ctx).
		Model(&models.AddressPoolEntry{}).
		Where("address = ?", addr.String()).
		Update("assigned", false)
	if res.Error != nil {
		return fmt.Errorf("release %s: %w", addr, res.Error)
	}
	return nil
}

// Claim marks address assigned regardless of its state and reports whether
// the flag changed. Used to repair drift, not for allocation.
func (p *Pool) Claim(ctx context.Context, address string) (bool, error) {
	res := p.db.WithContext(ctx).
		Model(&models.AddressPoolEntry{}).
		Where("address = ? AND assigned = ?", address, false).
		Update("assigned", true)
	if res.Error != nil {
		return false, fmt.Errorf("claim %s: %w", address, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (p *Pool) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if err := p.db.WithContext(ctx).Model(&models.AddressPoolEntry{}).Count(&s.Total).Error; err != nil {
		return Stats{}, fmt.Errorf("count pool: %w", err)
	}
	free, err := p.countFree(ctx)
	if err != nil {
		return Stats{}, err
	}
	s.Free = free
	s.Assigned = s.Total - free
	return s, nil
}

// Assigned lists assigned addresses in pool order.
func (p *Pool) Assigned(ctx context.Context) ([]string, error) {
	return p.list(ctx, true)
}

// Free lists free addresses in pool order.
func (p *Pool) Free(ctx context.Context) ([]string, error) {
	return p.list(ctx, false)
}

func (p *Pool) list(ctx context.Context, assigned bool) ([]string, error) {
	var out []string
	err := p.db.WithContext(ctx).
		Model(&models.AddressPoolEntry{}).
		Where("assigned = ?", assigned).
		Order("ordinal").
		Pluck("address", &out).Error
	if err != nil {
		return nil, fmt.Errorf("list pool: %w", err)
	}
	return out, nil
}

func (p *Pool) countFree(ctx context.Context) (int64, error) {
	var n int64
	err := p.db.WithContext(ctx).
		Model(&models.AddressPoolEntry{}).
		Where("assigned = ?", false).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count free addresses: %w", err)
	}
	return n, nil
}
