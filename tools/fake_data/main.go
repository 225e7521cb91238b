// Command fake_data seeds demo businesses and synthetic business-level daily
// aggregates so reports and the API can be exercised without an ads
// platform account. Demo businesses are inactive so bulk syncs skip them.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/adsync/internal/config"
	"github.com/patrickwarner/adsync/internal/db"
	"github.com/patrickwarner/adsync/internal/kpi"
	"github.com/patrickwarner/adsync/internal/models"
	"github.com/patrickwarner/adsync/internal/observability"
)

var (
	businessCount = flag.Int("businesses", 3, "number of demo businesses")
	dayCount      = flag.Int("days", 30, "days of history per business, ending today")
	seed          = flag.Int64("seed", time.Now().UnixNano(), "rng seed")
)

var colors = []string{"#2563eb", "#16a34a", "#db2777", "#ea580c", "#7c3aed"}

func main() {
	flag.Parse()

	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	ctx := context.Background()
	r := rand.New(rand.NewSource(*seed))
	repo := db.NewAnalyticsRepo(pg.DB)
	today := models.DayStart(time.Now(), cfg.Location())

	for i := 0; i < *businessCount; i++ {
		b := models.Business{
			Name:        fmt.Sprintf("Demo Business %d", i+1),
			AdAccountID: fmt.Sprintf("act_%d", 100000+r.Intn(900000)),
			AccessToken: randomToken(r),
			Color:       colors[i%len(colors)],
		}
		if err := insertBusiness(ctx, pg, &b); err != nil {
			logger.Fatal("insert business", zap.Error(err))
		}

		for d := 0; d < *dayCount; d++ {
			day := randomDay(r, b.ID, today.AddDate(0, 0, -d))
			if err := repo.UpsertBusinessDay(ctx, day); err != nil {
				logger.Fatal("upsert business day", zap.Int64("business_id", b.ID), zap.Error(err))
			}
		}
		logger.Info("seeded business",
			zap.Int64("business_id", b.ID),
			zap.String("name", b.Name),
			zap.Int("days", *dayCount))
	}
}

func insertBusiness(ctx context.Context, pg *db.Postgres, b *models.Business) error {
	return pg.DB.QueryRowContext(ctx,
		`INSERT INTO businesses (name, ad_account_id, access_token, active, color)
         VALUES ($1, $2, $3, FALSE, $4) RETURNING id, created_at`,
		b.Name, b.AdAccountID, b.AccessToken, b.Color,
	).Scan(&b.ID, &b.CreatedAt)
}

// randomDay draws a plausible lead-generation day and derives its ratios.
func randomDay(r *rand.Rand, businessID int64, date time.Time) models.BusinessDay {
	impressions := int64(2000 + r.Intn(48000))
	clicks := impressions * int64(5+r.Intn(25)) / 1000
	ch := models.LeadChannels{
		WhatsApp:  int64(r.Intn(30)),
		Instagram: int64(r.Intn(15)),
		Messenger: int64(r.Intn(10)),
	}
	m := models.Metrics{
		Spend:       float64(20+r.Intn(280)) + r.Float64(),
		Impressions: impressions,
		Clicks:      clicks,
		Leads:       ch.WhatsApp + ch.Instagram + ch.Messenger,
		Conversions: int64(r.Intn(5)),
	}
	m.Revenue = float64(m.Conversions) * float64(50+r.Intn(150))
	kpi.Derive(&m)

	reach := impressions * int64(60+r.Intn(30)) / 100
	return models.BusinessDay{
		BusinessID: businessID,
		Date:       date,
		Metrics:    m,
		Channels:   ch,
		Reach:      reach,
		Frequency:  float64(impressions) / float64(reach),
		HookRate:   15 + r.Float64()*25,
		HoldRate:   3 + r.Float64()*10,
	}
}

func randomToken(r *rand.Rand) string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 32)
	for i := range b {
		b[i] = letters[r.Intn(len(letters))]
	}
	return "DEMO" + string(b)
}
