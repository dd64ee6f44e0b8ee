// Package sample generates a deterministic demo corpus. It backs the
// --seed flag and gives tests a realistic snapshot to work against.
package sample

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/opensource-finance/procuresight/internal/attribution"
	"github.com/opensource-finance/procuresight/internal/domain"
)

// Version is the snapshot version of the generated fixture.
const Version = "sample-2024.1"

// DefaultSize is the number of records Fixture generates.
const DefaultSize = 120

// Model returns the demo risk model.
func Model() *domain.LinearModel {
	return &domain.LinearModel{
		FeatureNames: []string{
			domain.FeaturePriceWeight,
			domain.FeatureQualityWeight,
			domain.FeatureLogValue,
			domain.FeatureValueMissing,
			domain.FeatureTendersReceived,
			domain.FeatureTendersMissing,
			domain.FeatureLogDeadline,
			domain.ProcedureFeature(domain.ProcedureSingleSource),
			domain.ProcedureFeature(domain.ProcedureNegotiatedWithout),
			domain.SectorFeature(domain.SectorIT),
			domain.SectorFeature(domain.SectorConstruction),
			domain.FeatureEUFunded,
			domain.FeatureHasGreen,
		},
		Coefficients: []float64{0.45, -0.35, 0.40, 0.20, -0.30, 0.10, -0.15, 0.50, 0.40, 0.25, 0.20, -0.10, -0.15},
		Center:       []float64{0.70, 0.30, 11.5, 0.10, 3.0, 0.15, 3.2, 0.05, 0.05, 0.20, 0.15, 0.30, 0.20},
		Scale:        []float64{0.30, 0.30, 1.8, 0.30, 2.5, 0.36, 0.5, 0.22, 0.22, 0.40, 0.36, 0.46, 0.40},
		Intercept:    -2.9,
	}
}

var (
	sectorMix = []domain.Sector{
		domain.SectorIT, domain.SectorConstruction, domain.SectorIT,
		domain.SectorTransport, domain.SectorConstruction, domain.SectorIT,
		domain.SectorHealthcare, domain.SectorConsulting, domain.SectorEnergy,
		domain.SectorMaintenance, domain.SectorEducation, domain.SectorEnvironment,
	}
	buyerNames = []string{
		"Tallinna Linnavalitsus",
		"Tartu Linnavalitsus",
		"Riigi Kinnisvara AS",
		"Transpordiamet",
		"Tervisekassa",
		"Riigi Info- ja Kommunikatsioonitehnoloogia Keskus",
		"Haridus- ja Noorteamet",
		"Keskkonnaamet",
	}
	subjects = map[domain.Sector][]string{
		domain.SectorIT: {
			"Microsoft 365 litsentside ost ja hooldus",
			"infosüsteemi arendus- ja hooldusteenus",
			"andmekeskuse serverite ja salvestusseadmete ost",
			"SAP majandustarkvara hooldusleping",
		},
		domain.SectorConstruction: {
			"koolihoone rekonstrueerimistööd",
			"kergliiklustee ehitus",
			"lasteaia katuse remont ja soojustamine",
		},
		domain.SectorTransport:  {"maanteede talihooldus", "bussiliinide avaliku teenindamise leping"},
		domain.SectorHealthcare: {"meditsiiniseadmete ost", "laboriteenuste tellimine"},
		domain.SectorConsulting: {"strateegilise planeerimise konsultatsiooniteenus", "auditeerimisteenus"},
		domain.SectorEnergy:     {"elektrienergia ost", "päikesepaneelide paigaldus"},
		domain.SectorMaintenance: {
			"hoonete hooldus- ja koristusteenus",
			"ventilatsioonisüsteemide hooldusleping",
		},
		domain.SectorEducation:   {"õppevahendite ost", "täienduskoolituse korraldamine"},
		domain.SectorEnvironment: {"jäätmeveo teenus", "metsauuendustööd"},
	}
)

// Fixture generates a corpus of n records with buyer profiles, a dispute
// ledger, integrity lookups and a few narrative results. The output depends
// only on n.
func Fixture(n int) *domain.Fixture {
	if n <= 0 {
		n = DefaultSize
	}
	rng := rand.New(rand.NewPCG(2024, uint64(n)))
	model := Model()
	attributor, err := attribution.New(model, nil)
	if err != nil {
		panic(fmt.Sprintf("sample model: %v", err))
	}

	f := &domain.Fixture{
		Version:    Version,
		Model:      model,
		Disputes:   make(map[string][]domain.Dispute),
		Integrity:  make(map[string]domain.IntegrityLookups),
		Narratives: make(map[string]*domain.NarrativeResult),
		CustomRules: []domain.CustomRule{{
			ID:          "watch_large_framework",
			Title:       "Large framework agreement",
			Description: "Framework agreements above 1M EUR are reviewed by the central unit.",
			Expression:  "framework && value_known && value > 1000000.0",
			Severity:    domain.SeverityMedium,
			Enabled:     true,
		}},
	}

	for i := 0; i < n; i++ {
		rec := record(rng, i)
		rec.Features = domain.EncodeFeatures(&rec.Procurement)
		linear := attributor.LinearScore(attributor.Contributions(context.Background(), rec.ID, rec.Features))
		rec.RiskScore = math.Round(attribution.Probability(linear)*1e4) / 1e4
		f.Records = append(f.Records, rec)

		if rng.Float64() < rec.RiskScore*2 {
			f.Disputes[rec.ID] = []domain.Dispute{{
				DisputeID:  fmt.Sprintf("VAKO-%d", 1000+i),
				Challenger: "Pakkuja OÜ",
				Submitted:  fmt.Sprintf("2023-%02d-%02d", 1+i%12, 1+i%28),
				Status:     "decided",
				Object:     "award criteria",
				ReviewNo:   fmt.Sprintf("%d-23/%d", 100+i, 200000+i),
				Result:     []string{"upheld", "dismissed", "partially upheld"}[i%3],
			}}
		}
		if i%7 == 0 {
			z := 1.2 + rng.Float64()*2
			age := rng.Float64() * 6
			f.Integrity[rec.ID] = domain.IntegrityLookups{
				DonorLinked:        i%21 == 0,
				CPVPriceZScore:     &z,
				ThresholdProximity: i%14 == 0,
				WinnerAgeYears:     &age,
			}
		}
		if i%9 == 0 {
			f.Narratives[rec.ID] = narrative(i)
		}
	}

	f.Buyers = buyers(f)
	return f
}

func record(rng *rand.Rand, i int) *domain.Record {
	sector := sectorMix[i%len(sectorMix)]
	p := domain.Procurement{
		ID:        fmt.Sprintf("%07d", 7000000+i*37),
		BuyerName: buyerNames[rng.IntN(len(buyerNames))],
		Sector:    sector,
	}
	if i%40 == 39 {
		p.BuyerName = ""
	}

	switch x := rng.Float64(); {
	case x < 0.60:
		p.Procedure = domain.ProcedureOpen
	case x < 0.70:
		p.Procedure = domain.ProcedureRestricted
	case x < 0.80:
		p.Procedure = domain.ProcedureNegotiatedWithCall
	case x < 0.88:
		p.Procedure = domain.ProcedureNegotiatedWithout
	case x < 0.95:
		p.Procedure = domain.ProcedureSingleSource
	default:
		p.Procedure = domain.ProcedureSimplified
	}

	switch sector {
	case domain.SectorConstruction:
		p.ContractType = domain.ContractWorks
	case domain.SectorIT, domain.SectorHealthcare, domain.SectorEnergy, domain.SectorEducation:
		p.ContractType = domain.ContractSupplies
		if rng.IntN(2) == 0 {
			p.ContractType = domain.ContractServices
		}
	default:
		p.ContractType = domain.ContractServices
	}

	if rng.Float64() >= 0.1 {
		v := math.Round(math.Exp(9+rng.Float64()*7)/1000) * 1000
		p.EstimatedValue = &v
	}

	switch x := rng.Float64(); {
	case x < 0.40:
		p.PriceWeight = 1
	case x < 0.60:
		p.PriceWeight, p.QualityWeight = 0.6, 0.4
	case x < 0.80:
		p.PriceWeight, p.QualityWeight = 0.7, 0.3
	case x < 0.92:
		p.PriceWeight, p.QualityWeight = 0.3, 0.7
	}

	if rng.Float64() >= 0.15 {
		t := rng.IntN(8)
		p.TenderCount = &t
	}
	if rng.Float64() >= 0.1 {
		d := float64(10 + rng.IntN(40))
		p.DeadlineDays = &d
	}

	p.EUFunded = rng.Float64() < 0.3
	p.Framework = rng.Float64() < 0.2
	p.HasGreen = rng.Float64() < 0.2
	p.HasSocial = rng.Float64() < 0.1
	p.HasInnovation = rng.Float64() < 0.1

	options := subjects[sector]
	title := "Hanke objektiks on " + options[i%len(options)] + ". Hange jaotatakse osadeks vastavalt tehnilisele kirjeldusele."

	return &domain.Record{Procurement: p, Title: title}
}

func narrative(i int) *domain.NarrativeResult {
	issues := [][]domain.IssueLabel{
		{{Label: "Disproportionate turnover requirement", Evidence: "Minimum annual turnover 3x contract value.", SustainProbability: "high"}},
		{{Label: "Brand-specific technical requirement", Evidence: "Equivalent products are not accepted.", SustainProbability: "medium"}},
		{{Label: "Subjective evaluation criterion", Evidence: "Quality is scored on the commission's overall impression.", SustainProbability: "medium"}},
		{{Label: "Short clarification window", SustainProbability: "low"}},
	}
	return &domain.NarrativeResult{
		Scenario: "A losing bidder challenges the award criteria as unclear.",
		Issues:   issues[(i/9)%len(issues)],
	}
}

func buyers(f *domain.Fixture) []*domain.BuyerProfile {
	type acc struct {
		count, priceOnly, disputes int
		single, tenders, known     int
		risk                       float64
	}
	byName := make(map[string]*acc)
	for _, r := range f.Records {
		if r.BuyerName == "" {
			continue
		}
		a := byName[r.BuyerName]
		if a == nil {
			a = &acc{}
			byName[r.BuyerName] = a
		}
		a.count++
		a.risk += r.RiskScore
		if domain.IsPriceOnly(r.PriceWeight, r.QualityWeight) {
			a.priceOnly++
		}
		if t, ok := r.Features.Tenders(); ok {
			a.known++
			a.tenders += t
			if t == 1 {
				a.single++
			}
		}
		if _, ok := f.Disputes[r.ID]; ok {
			a.disputes++
		}
	}

	out := make([]*domain.BuyerProfile, 0, len(buyerNames))
	for _, name := range buyerNames {
		a := byName[name]
		if a == nil {
			continue
		}
		p := &domain.BuyerProfile{
			Name:             name,
			ProcurementCount: a.count,
			PriceOnlyRate:    float64(a.priceOnly) / float64(a.count),
			DisputeCount:     a.disputes,
			RiskScore:        a.risk / float64(a.count),
		}
		if a.known > 0 {
			p.SingleBidderRate = float64(a.single) / float64(a.known)
			p.AvgTenders = float64(a.tenders) / float64(a.known)
		}
		if p.SingleBidderRate > 0.3 {
			p.RiskFlags = append(p.RiskFlags, "High single-bidder rate")
		}
		if p.PriceOnlyRate > 0.7 {
			p.RiskFlags = append(p.RiskFlags, "Mostly price-only evaluation")
		}
		out = append(out, p)
	}
	return out
}
