package repository

// Schema definitions for the ProcureSight snapshot store.
// Compatible with both SQLite and PostgreSQL. Booleans are stored as
// INTEGER 0/1 and nullable numerics as NULL.

const schemaSnapshot = `
CREATE TABLE IF NOT EXISTS snapshot_meta (
    id INTEGER PRIMARY KEY,
    version TEXT NOT NULL,
    model TEXT,
    imported_at TIMESTAMP NOT NULL
);
`

const schemaProcurements = `
CREATE TABLE IF NOT EXISTS procurements (
    id TEXT PRIMARY KEY,
    buyer_name TEXT NOT NULL DEFAULT '',
    sector TEXT NOT NULL DEFAULT '',
    procedure_type TEXT NOT NULL DEFAULT '',
    contract_type TEXT NOT NULL DEFAULT '',
    estimated_value DOUBLE PRECISION,
    price_weight DOUBLE PRECISION NOT NULL DEFAULT 0,
    quality_weight DOUBLE PRECISION NOT NULL DEFAULT 0,
    tender_count INTEGER,
    deadline_days DOUBLE PRECISION,
    eu_funded INTEGER NOT NULL DEFAULT 0,
    framework INTEGER NOT NULL DEFAULT 0,
    has_green INTEGER NOT NULL DEFAULT 0,
    has_social INTEGER NOT NULL DEFAULT 0,
    has_innovation INTEGER NOT NULL DEFAULT 0,
    risk_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    title TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_procurements_sector ON procurements(sector);
CREATE INDEX IF NOT EXISTS idx_procurements_buyer ON procurements(buyer_name);
`

// schemaFeatures stores feature vectors in long form, one row per feature.
const schemaFeatures = `
CREATE TABLE IF NOT EXISTS features (
    record_id TEXT NOT NULL,
    name TEXT NOT NULL,
    value DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (record_id, name)
);
`

const schemaBuyers = `
CREATE TABLE IF NOT EXISTS buyer_profiles (
    name TEXT PRIMARY KEY,
    procurement_count INTEGER NOT NULL DEFAULT 0,
    price_only_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
    single_bidder_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
    avg_tenders DOUBLE PRECISION NOT NULL DEFAULT 0,
    dispute_count INTEGER NOT NULL DEFAULT 0,
    risk_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    risk_flags TEXT
);
`

const schemaDisputes = `
CREATE TABLE IF NOT EXISTS disputes (
    record_id TEXT NOT NULL,
    dispute_id TEXT NOT NULL,
    challenger TEXT NOT NULL DEFAULT '',
    submitted TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT '',
    object TEXT NOT NULL DEFAULT '',
    review_no TEXT NOT NULL DEFAULT '',
    result TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (record_id, dispute_id)
);
`

const schemaIntegrity = `
CREATE TABLE IF NOT EXISTS integrity_lookups (
    record_id TEXT PRIMARY KEY,
    donor_linked INTEGER NOT NULL DEFAULT 0,
    hidden_concentration INTEGER NOT NULL DEFAULT 0,
    cpv_price_zscore DOUBLE PRECISION,
    threshold_proximity INTEGER NOT NULL DEFAULT 0,
    winner_age_years DOUBLE PRECISION
);
`

const schemaNarratives = `
CREATE TABLE IF NOT EXISTS narratives (
    record_id TEXT PRIMARY KEY,
    scenario TEXT NOT NULL DEFAULT '',
    issues TEXT
);
`

// schemaWatchRules holds operator-defined CEL watch rules.
const schemaWatchRules = `
CREATE TABLE IF NOT EXISTS watch_rules (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    severity TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1
);
`

// tables lists every data table in deletion order.
var tables = []string{
	"snapshot_meta",
	"features",
	"procurements",
	"buyer_profiles",
	"disputes",
	"integrity_lookups",
	"narratives",
	"watch_rules",
}

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaSnapshot,
		schemaProcurements,
		schemaFeatures,
		schemaBuyers,
		schemaDisputes,
		schemaIntegrity,
		schemaNarratives,
		schemaWatchRules,
	}
}
