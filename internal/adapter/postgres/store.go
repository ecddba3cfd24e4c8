package postgres

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/healnet/donation-matching/internal/domain"
	"github.com/healnet/donation-matching/internal/geo"
)

// Store reads and updates donation and need records.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database not reachable: %w", err)
	}
	return nil
}

const donationColumns = `id, donor_ref, item, category, quantity, location, lat, lng, description, status, created_at`

const needColumns = `id, organization_ref, item, category, quantity, urgency, location, lat, lng, status, created_at`

// GetDonation fetches one donation by id.
func (s *Store) GetDonation(ctx context.Context, id string) (domain.Donation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+donationColumns+` FROM donations WHERE id = $1`, id)

	var d domain.Donation
	var category, status string
	var lat, lng sql.NullFloat64
	err := row.Scan(&d.ID, &d.DonorRef, &d.Item, &category, &d.Quantity, &d.LocationText,
		&lat, &lng, &d.Description, &status, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Donation{}, domain.WrapError(domain.ErrNotFound, "get donation", fmt.Errorf("donation %s", id))
		}
		return domain.Donation{}, domain.WrapError(domain.ErrPersistence, "get donation", err)
	}
	d.Category = domain.Category(category)
	d.Status = domain.DonationStatus(status)
	d.Coordinates = coordinates(lat, lng)
	return d, nil
}

// UpsertDonation inserts a donation or refreshes its descriptive fields.
// Geocode columns are left untouched on conflict unless the incoming record
// carries coordinates.
func (s *Store) UpsertDonation(ctx context.Context, d domain.Donation) error {
	var lat, lng sql.NullFloat64
	if d.Coordinates != nil {
		lat = sql.NullFloat64{Float64: d.Coordinates.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: d.Coordinates.Lng, Valid: true}
	}
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	status := d.Status
	if status == "" {
		status = domain.DonationPending
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO donations (id, donor_ref, item, category, quantity, location, lat, lng, description, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
	donor_ref = EXCLUDED.donor_ref,
	item = EXCLUDED.item,
	category = EXCLUDED.category,
	quantity = EXCLUDED.quantity,
	location = EXCLUDED.location,
	lat = COALESCE(EXCLUDED.lat, donations.lat),
	lng = COALESCE(EXCLUDED.lng, donations.lng),
	description = EXCLUDED.description,
	status = EXCLUDED.status
`,
		d.ID, d.DonorRef, d.Item, string(d.Category), d.Quantity, d.LocationText,
		lat, lng, d.Description, string(status), createdAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "upsert donation", err)
	}
	return nil
}

// FindOpenNeedsWithinRadius returns open needs whose coordinates lie within
// radiusMeters of center, nearest first. A bounding box narrows the scan in
// SQL and the exact great-circle distance is checked here.
func (s *Store) FindOpenNeedsWithinRadius(ctx context.Context, center domain.Coordinate, radiusMeters float64, limit int) ([]domain.Need, error) {
	radiusKm := radiusMeters / 1000
	box := geo.BoundingBox(center, radiusKm)

	query := `SELECT ` + needColumns + ` FROM needs
WHERE status = 'open' AND lat IS NOT NULL AND lng IS NOT NULL
	AND lat BETWEEN $1 AND $2`
	args := []any{box.Southwest.Lat, box.Northeast.Lat}
	// Near the poles or across the antimeridian the longitude span is not a
	// simple interval, so only latitude is filtered in SQL.
	if lngFilterable(box) {
		query += ` AND lng BETWEEN $3 AND $4`
		args = append(args, box.Southwest.Lng, box.Northeast.Lng)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "find needs within radius", err)
	}
	defer rows.Close()

	type candidate struct {
		need domain.Need
		km   float64
	}
	var candidates []candidate
	for rows.Next() {
		n, err := scanNeed(rows)
		if err != nil {
			return nil, domain.WrapError(domain.ErrPersistence, "scan need", err)
		}
		if n.Coordinates == nil {
			continue
		}
		km := geo.DistanceKm(center, *n.Coordinates)
		if km <= radiusKm {
			candidates = append(candidates, candidate{need: n, km: km})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "iterate needs", err)
	}

	slices.SortStableFunc(candidates, func(a, b candidate) int {
		return cmp.Compare(a.km, b.km)
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	needs := make([]domain.Need, len(candidates))
	for i, c := range candidates {
		needs[i] = c.need
	}
	return needs, nil
}

func lngFilterable(box domain.BoundingBox) bool {
	return box.Northeast.Lat < 90 && box.Southwest.Lat > -90 &&
		box.Northeast.Lng <= 180 && box.Southwest.Lng >= -180 &&
		box.Northeast.Lng > box.Southwest.Lng
}

// PendingGeocodes lists records never geocoded, plus records still lacking
// coordinates whose last attempt is older than retryBefore. Oldest first.
func (s *Store) PendingGeocodes(ctx context.Context, kind domain.RecordKind, limit int, retryBefore time.Time) ([]domain.GeocodeTarget, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, location FROM `+table+`
WHERE geocoded_at IS NULL
	OR ((lat IS NULL OR lng IS NULL) AND geocoded_at < $1)
ORDER BY created_at, id
LIMIT $2`, retryBefore, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "query pending "+table, err)
	}
	defer rows.Close()

	var targets []domain.GeocodeTarget
	for rows.Next() {
		t := domain.GeocodeTarget{Kind: kind}
		if err := rows.Scan(&t.ID, &t.LocationText); err != nil {
			return nil, domain.WrapError(domain.ErrPersistence, "scan pending "+table, err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "iterate pending "+table, err)
	}
	return targets, nil
}

// UpdateGeocode records one geocode outcome.
func (s *Store) UpdateGeocode(ctx context.Context, kind domain.RecordKind, u domain.GeocodeUpdate) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	res, err := execGeocodeUpdate(ctx, s.db, table, u)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "update "+table+" geocode", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.WrapError(domain.ErrNotFound, "update "+table+" geocode", fmt.Errorf("%s %s", kind, u.ID))
	}
	return nil
}

// ApplyGeocodes records a batch of outcomes in one transaction.
func (s *Store) ApplyGeocodes(ctx context.Context, kind domain.RecordKind, updates []domain.GeocodeUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	table, err := tableFor(kind)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "begin geocode batch", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, u := range updates {
		if _, err := execGeocodeUpdate(ctx, tx, table, u); err != nil {
			return domain.WrapError(domain.ErrPersistence, "apply "+table+" geocode "+u.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.WrapError(domain.ErrPersistence, "commit geocode batch", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execGeocodeUpdate(ctx context.Context, db execer, table string, u domain.GeocodeUpdate) (sql.Result, error) {
	if u.Result == nil || !u.Result.Quality.Usable() {
		return db.ExecContext(ctx, `UPDATE `+table+`
SET geocode_quality = $2, geocoded_at = $3
WHERE id = $1`, u.ID, string(domain.QualityFailed), u.AttemptedAt)
	}
	r := u.Result
	return db.ExecContext(ctx, `UPDATE `+table+`
SET lat = $2, lng = $3, formatted_address = $4, geocode_quality = $5, geocoded_at = $6
WHERE id = $1`, u.ID, r.Coordinates.Lat, r.Coordinates.Lng, r.FormattedAddress, string(r.Quality), u.AttemptedAt)
}

func tableFor(kind domain.RecordKind) (string, error) {
	switch kind {
	case domain.KindDonation:
		return "donations", nil
	case domain.KindNeed:
		return "needs", nil
	}
	return "", domain.WrapError(domain.ErrInvalidInput, "geocode table", fmt.Errorf("unknown record kind %q", kind))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNeed(row scanner) (domain.Need, error) {
	var n domain.Need
	var category, urgency, status string
	var lat, lng sql.NullFloat64
	if err := row.Scan(&n.ID, &n.OrganizationRef, &n.Item, &category, &n.Quantity, &urgency,
		&n.LocationText, &lat, &lng, &status, &n.CreatedAt); err != nil {
		return domain.Need{}, err
	}
	n.Category = domain.Category(category)
	n.Urgency = domain.Urgency(strings.ToLower(urgency))
	n.Status = domain.NeedStatus(status)
	n.Coordinates = coordinates(lat, lng)
	return n, nil
}

func coordinates(lat, lng sql.NullFloat64) *domain.Coordinate {
	if !lat.Valid || !lng.Valid {
		return nil
	}
	return &domain.Coordinate{Lat: lat.Float64, Lng: lng.Float64}
}
