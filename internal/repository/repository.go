// Package repository loads and stores the scoring snapshot in SQL.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/procuresight/internal/domain"
)

var (
	// ErrEmpty is returned by LoadSnapshot before anything was imported.
	ErrEmpty = errors.New("no snapshot imported")

	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Source and domain.Importer using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := wrap(db, cfg.Driver)
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func wrap(db *sql.DB, driver string) *SQLRepository {
	return &SQLRepository{
		db:     db,
		driver: driver,
	}
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// LoadSnapshot reads every table into an immutable snapshot.
func (r *SQLRepository) LoadSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	start := time.Now()

	var version string
	var modelJSON sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT version, model FROM snapshot_meta WHERE id = 1`).
		Scan(&version, &modelJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot meta: %w", err)
	}

	var model *domain.LinearModel
	if modelJSON.Valid && modelJSON.String != "" {
		model = &domain.LinearModel{}
		if err := json.Unmarshal([]byte(modelJSON.String), model); err != nil {
			return nil, fmt.Errorf("decode model: %w", err)
		}
	}

	records, err := r.loadRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("load procurements: %w", err)
	}
	snap := domain.NewSnapshot(version, model, records)

	loaders := []struct {
		name string
		fn   func(context.Context, *domain.Snapshot) error
	}{
		{"buyer_profiles", r.loadBuyers},
		{"disputes", r.loadDisputes},
		{"integrity_lookups", r.loadIntegrity},
		{"narratives", r.loadNarratives},
		{"watch_rules", r.loadWatchRules},
	}
	for _, l := range loaders {
		if err := l.fn(ctx, snap); err != nil {
			return nil, fmt.Errorf("load %s: %w", l.name, err)
		}
	}

	slog.Debug("snapshot read",
		"version", version,
		"records", snap.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return snap, nil
}

func (r *SQLRepository) loadRecords(ctx context.Context) ([]*domain.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, buyer_name, sector, procedure_type, contract_type,
			   estimated_value, price_weight, quality_weight, tender_count, deadline_days,
			   eu_funded, framework, has_green, has_social, has_innovation,
			   risk_score, title
		FROM procurements
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]*domain.Record)
	var records []*domain.Record
	for rows.Next() {
		var rec domain.Record
		var sector, procedure, contract string
		var value, deadline sql.NullFloat64
		var tenders sql.NullInt64
		var eu, framework, green, social, innovation int

		if err := rows.Scan(
			&rec.ID, &rec.BuyerName, &sector, &procedure, &contract,
			&value, &rec.PriceWeight, &rec.QualityWeight, &tenders, &deadline,
			&eu, &framework, &green, &social, &innovation,
			&rec.RiskScore, &rec.Title,
		); err != nil {
			return nil, err
		}

		if rec.Sector, err = domain.ParseSector(sector); err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		if rec.Procedure, err = domain.ParseProcedure(procedure); err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		if rec.ContractType, err = domain.ParseContractType(contract); err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		if value.Valid {
			rec.EstimatedValue = &value.Float64
		}
		if deadline.Valid {
			rec.DeadlineDays = &deadline.Float64
		}
		if tenders.Valid {
			t := int(tenders.Int64)
			rec.TenderCount = &t
		}
		rec.EUFunded = eu == 1
		rec.Framework = framework == 1
		rec.HasGreen = green == 1
		rec.HasSocial = social == 1
		rec.HasInnovation = innovation == 1
		rec.Features = make(domain.FeatureVector)

		byID[rec.ID] = &rec
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	frows, err := r.db.QueryContext(ctx, `SELECT record_id, name, value FROM features`)
	if err != nil {
		return nil, err
	}
	defer frows.Close()

	for frows.Next() {
		var id, name string
		var v float64
		if err := frows.Scan(&id, &name, &v); err != nil {
			return nil, err
		}
		if rec, ok := byID[id]; ok {
			rec.Features[name] = v
		}
	}
	return records, frows.Err()
}

func (r *SQLRepository) loadBuyers(ctx context.Context, snap *domain.Snapshot) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, procurement_count, price_only_rate, single_bidder_rate,
			   avg_tenders, dispute_count, risk_score, risk_flags
		FROM buyer_profiles
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var b domain.BuyerProfile
		var flags sql.NullString
		if err := rows.Scan(
			&b.Name, &b.ProcurementCount, &b.PriceOnlyRate, &b.SingleBidderRate,
			&b.AvgTenders, &b.DisputeCount, &b.RiskScore, &flags,
		); err != nil {
			return err
		}
		if flags.Valid && flags.String != "" {
			if err := json.Unmarshal([]byte(flags.String), &b.RiskFlags); err != nil {
				return fmt.Errorf("buyer %s flags: %w", b.Name, err)
			}
		}
		snap.Buyers[b.Name] = &b
	}
	return rows.Err()
}

func (r *SQLRepository) loadDisputes(ctx context.Context, snap *domain.Snapshot) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT record_id, dispute_id, challenger, submitted, status, object, review_no, result
		FROM disputes
		ORDER BY record_id, submitted, dispute_id
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var d domain.Dispute
		if err := rows.Scan(&id, &d.DisputeID, &d.Challenger, &d.Submitted,
			&d.Status, &d.Object, &d.ReviewNo, &d.Result); err != nil {
			return err
		}
		snap.Disputes[id] = append(snap.Disputes[id], d)
	}
	return rows.Err()
}

func (r *SQLRepository) loadIntegrity(ctx context.Context, snap *domain.Snapshot) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT record_id, donor_linked, hidden_concentration, cpv_price_zscore,
			   threshold_proximity, winner_age_years
		FROM integrity_lookups
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var donor, hidden, proximity int
		var zscore, age sql.NullFloat64
		if err := rows.Scan(&id, &donor, &hidden, &zscore, &proximity, &age); err != nil {
			return err
		}
		l := domain.IntegrityLookups{
			DonorLinked:         donor == 1,
			HiddenConcentration: hidden == 1,
			ThresholdProximity:  proximity == 1,
		}
		if zscore.Valid {
			l.CPVPriceZScore = &zscore.Float64
		}
		if age.Valid {
			l.WinnerAgeYears = &age.Float64
		}
		snap.Integrity[id] = l
	}
	return rows.Err()
}

func (r *SQLRepository) loadNarratives(ctx context.Context, snap *domain.Snapshot) error {
	rows, err := r.db.QueryContext(ctx, `SELECT record_id, scenario, issues FROM narratives`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var n domain.NarrativeResult
		var issues sql.NullString
		if err := rows.Scan(&id, &n.Scenario, &issues); err != nil {
			return err
		}
		if issues.Valid && issues.String != "" {
			if err := json.Unmarshal([]byte(issues.String), &n.Issues); err != nil {
				return fmt.Errorf("narrative %s: %w", id, err)
			}
		}
		snap.Narratives[id] = &n
	}
	return rows.Err()
}

func (r *SQLRepository) loadWatchRules(ctx context.Context, snap *domain.Snapshot) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, description, expression, severity, enabled
		FROM watch_rules
		ORDER BY id
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cr domain.CustomRule
		var description sql.NullString
		var severity string
		var enabled int
		if err := rows.Scan(&cr.ID, &cr.Title, &description, &cr.Expression, &severity, &enabled); err != nil {
			return err
		}
		if cr.Severity, err = domain.ParseSeverity(severity); err != nil {
			return fmt.Errorf("watch rule %s: %w", cr.ID, err)
		}
		cr.Description = description.String
		cr.Enabled = enabled == 1
		snap.CustomRules = append(snap.CustomRules, cr)
	}
	return rows.Err()
}

// Import replaces the stored snapshot with the fixture in one transaction.
// Records without a feature vector are encoded with domain.EncodeFeatures.
func (r *SQLRepository) Import(ctx context.Context, f *domain.Fixture) error {
	if f == nil || f.Version == "" {
		return fmt.Errorf("%w: fixture version is required", ErrInvalidInput)
	}

	var modelJSON any
	if f.Model != nil {
		if err := f.Model.Validate(); err != nil {
			return err
		}
		b, err := json.Marshal(f.Model)
		if err != nil {
			return err
		}
		modelJSON = string(b)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if _, err := tx.ExecContext(ctx, r.rebind(`
		INSERT INTO snapshot_meta (id, version, model, imported_at) VALUES (1, ?, ?, ?)
	`), f.Version, modelJSON, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert snapshot meta: %w", err)
	}

	steps := []struct {
		name string
		fn   func(context.Context, *sql.Tx, *domain.Fixture) error
	}{
		{"procurements", r.insertRecords},
		{"buyer_profiles", r.insertBuyers},
		{"disputes", r.insertDisputes},
		{"integrity_lookups", r.insertIntegrity},
		{"narratives", r.insertNarratives},
		{"watch_rules", r.insertWatchRules},
	}
	for _, s := range steps {
		if err := s.fn(ctx, tx, f); err != nil {
			return fmt.Errorf("insert %s: %w", s.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	slog.Info("snapshot imported",
		"version", f.Version,
		"records", len(f.Records),
		"buyers", len(f.Buyers),
		"watch_rules", len(f.CustomRules),
	)
	return nil
}

func (r *SQLRepository) insertRecords(ctx context.Context, tx *sql.Tx, f *domain.Fixture) error {
	recStmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO procurements (
			id, buyer_name, sector, procedure_type, contract_type,
			estimated_value, price_weight, quality_weight, tender_count, deadline_days,
			eu_funded, framework, has_green, has_social, has_innovation,
			risk_score, title
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return err
	}
	defer recStmt.Close()

	featStmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO features (record_id, name, value) VALUES (?, ?, ?)
	`))
	if err != nil {
		return err
	}
	defer featStmt.Close()

	for _, rec := range f.Records {
		if rec == nil || rec.ID == "" {
			return fmt.Errorf("%w: record without id", ErrInvalidInput)
		}
		var tenders any
		if rec.TenderCount != nil {
			tenders = *rec.TenderCount
		}
		if _, err := recStmt.ExecContext(ctx,
			rec.ID, rec.BuyerName, string(rec.Sector), string(rec.Procedure), string(rec.ContractType),
			nullFloat(rec.EstimatedValue), rec.PriceWeight, rec.QualityWeight, tenders, nullFloat(rec.DeadlineDays),
			boolInt(rec.EUFunded), boolInt(rec.Framework), boolInt(rec.HasGreen), boolInt(rec.HasSocial), boolInt(rec.HasInnovation),
			rec.RiskScore, rec.Title,
		); err != nil {
			return fmt.Errorf("record %s: %w", rec.ID, err)
		}

		features := rec.Features
		if len(features) == 0 {
			features = domain.EncodeFeatures(&rec.Procurement)
		}
		for name, v := range features {
			if _, err := featStmt.ExecContext(ctx, rec.ID, name, v); err != nil {
				return fmt.Errorf("record %s feature %s: %w", rec.ID, name, err)
			}
		}
	}
	return nil
}

func (r *SQLRepository) insertBuyers(ctx context.Context, tx *sql.Tx, f *domain.Fixture) error {
	stmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO buyer_profiles (
			name, procurement_count, price_only_rate, single_bidder_rate,
			avg_tenders, dispute_count, risk_score, risk_flags
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range f.Buyers {
		flags, err := json.Marshal(b.RiskFlags)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			b.Name, b.ProcurementCount, b.PriceOnlyRate, b.SingleBidderRate,
			b.AvgTenders, b.DisputeCount, b.RiskScore, string(flags),
		); err != nil {
			return fmt.Errorf("buyer %s: %w", b.Name, err)
		}
	}
	return nil
}

func (r *SQLRepository) insertDisputes(ctx context.Context, tx *sql.Tx, f *domain.Fixture) error {
	stmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO disputes (
			record_id, dispute_id, challenger, submitted, status, object, review_no, result
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for id, list := range f.Disputes {
		for _, d := range list {
			if _, err := stmt.ExecContext(ctx,
				id, d.DisputeID, d.Challenger, d.Submitted, d.Status, d.Object, d.ReviewNo, d.Result,
			); err != nil {
				return fmt.Errorf("dispute %s/%s: %w", id, d.DisputeID, err)
			}
		}
	}
	return nil
}

func (r *SQLRepository) insertIntegrity(ctx context.Context, tx *sql.Tx, f *domain.Fixture) error {
	stmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO integrity_lookups (
			record_id, donor_linked, hidden_concentration, cpv_price_zscore,
			threshold_proximity, winner_age_years
		) VALUES (?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for id, l := range f.Integrity {
		if _, err := stmt.ExecContext(ctx,
			id, boolInt(l.DonorLinked), boolInt(l.HiddenConcentration), nullFloat(l.CPVPriceZScore),
			boolInt(l.ThresholdProximity), nullFloat(l.WinnerAgeYears),
		); err != nil {
			return fmt.Errorf("integrity %s: %w", id, err)
		}
	}
	return nil
}

func (r *SQLRepository) insertNarratives(ctx context.Context, tx *sql.Tx, f *domain.Fixture) error {
	stmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO narratives (record_id, scenario, issues) VALUES (?, ?, ?)
	`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for id, n := range f.Narratives {
		if n == nil {
			continue
		}
		issues, err := json.Marshal(n.Issues)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, id, n.Scenario, string(issues)); err != nil {
			return fmt.Errorf("narrative %s: %w", id, err)
		}
	}
	return nil
}

func (r *SQLRepository) insertWatchRules(ctx context.Context, tx *sql.Tx, f *domain.Fixture) error {
	stmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO watch_rules (id, title, description, expression, severity, enabled)
		VALUES (?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, cr := range f.CustomRules {
		if _, err := domain.ParseSeverity(string(cr.Severity)); err != nil {
			return fmt.Errorf("watch rule %s: %w", cr.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			cr.ID, cr.Title, cr.Description, cr.Expression, string(cr.Severity), boolInt(cr.Enabled),
		); err != nil {
			return fmt.Errorf("watch rule %s: %w", cr.ID, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
