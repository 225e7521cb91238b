// Business Report Tool prints a performance report for one synced business.
//
// It reads the business-level daily aggregates from Postgres and prints
// window totals, a daily breakdown and a few automated insights.
//
// Usage:
//
//	go run ./tools/business_report -business-id=12 -days=30
//
// Configuration:
//
//	-business-id: Required. The business to report on
//	-days: Optional. Window size in days including today (default: 30)
//	-postgres-dsn: Optional. Overrides POSTGRES_DSN
//
// The reporting time zone comes from REPORTING_TIMEZONE.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"github.com/patrickwarner/adsync/internal/config"
	"github.com/patrickwarner/adsync/internal/models"
	"github.com/patrickwarner/adsync/internal/reporting"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	var (
		businessID = flag.Int64("business-id", 0, "Business ID to generate report for")
		days       = flag.Int("days", reporting.DefaultDays, "Number of days to include in report")
		dsn        = flag.String("postgres-dsn", cfg.PostgresDSN, "Postgres DSN")
	)
	flag.Parse()

	if *businessID == 0 {
		fmt.Fprintf(os.Stderr, "Error: business-id is required\n")
		flag.Usage()
		os.Exit(1)
	}

	db, err := sql.Open("postgres", *dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to Postgres: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database connection: %v\n", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error pinging Postgres: %v\n", err)
		os.Exit(1)
	}

	summary, err := reporting.NewReporter(db, cfg.Location()).BusinessReport(ctx, *businessID, *days)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	printBusinessReport(summary)
}

func printBusinessReport(summary *reporting.BusinessSummary) {
	fmt.Printf("═══════════════════════════════════════════════════════════════════════════════════\n")
	fmt.Printf("                              BUSINESS PERFORMANCE REPORT                          \n")
	fmt.Printf("═══════════════════════════════════════════════════════════════════════════════════\n")
	fmt.Printf("Business ID: %d\n", summary.BusinessID)
	fmt.Printf("Report Period: %s to %s (%d days)\n", summary.From, summary.To, summary.Days)
	fmt.Printf("Generated: %s\n\n", time.Now().Format("2006-01-02 15:04:05"))

	total := summary.Totals
	fmt.Printf("📊 OVERALL PERFORMANCE\n")
	fmt.Printf("───────────────────────────────────────────────────────────────────────────────────\n")
	fmt.Printf("Total Spend:        $%.2f\n", total.Spend)
	fmt.Printf("Total Impressions:  %s\n", formatNumber(total.Impressions))
	fmt.Printf("Total Clicks:       %s\n", formatNumber(total.Clicks))
	fmt.Printf("Total Leads:        %s (WhatsApp %d, Instagram %d, Messenger %d)\n",
		formatNumber(total.Leads), total.Channels.WhatsApp, total.Channels.Instagram, total.Channels.Messenger)
	fmt.Printf("Conversions:        %s\n", formatNumber(total.Conversions))
	fmt.Printf("Overall CTR:        %.2f%%\n", total.CTR)
	fmt.Printf("Average CPM:        $%.2f\n", total.CPM)
	if total.CPL > 0 {
		fmt.Printf("Cost per Lead:      $%.2f\n", total.CPL)
	}
	if total.ROAS > 0 {
		fmt.Printf("ROAS:               %.2fx\n", total.ROAS)
	}
	fmt.Printf("Hook / Hold Rate:   %.2f%% / %.2f%%\n", total.HookRate, total.HoldRate)
	fmt.Printf("\n")

	if len(summary.Daily) > 0 {
		fmt.Printf("📅 DAILY BREAKDOWN\n")
		fmt.Printf("───────────────────────────────────────────────────────────────────────────────────\n")
		fmt.Printf("Date        |   Spend   | Impressions | Clicks |   CTR   | Leads |   CPL   \n")
		fmt.Printf("------------|-----------|-------------|--------|---------|-------|----------\n")
		for _, d := range summary.Daily {
			fmt.Printf("%-10s | $%8.2f | %11s | %6s | %6.2f%% | %5d | $%6.2f\n",
				d.Date.Format("2006-01-02"),
				d.Spend,
				formatNumber(d.Impressions),
				formatNumber(d.Clicks),
				d.CTR,
				d.Leads,
				d.CPL,
			)
		}
		fmt.Printf("\n")
	}

	fmt.Printf("💡 INSIGHTS\n")
	fmt.Printf("───────────────────────────────────────────────────────────────────────────────────\n")
	switch {
	case len(summary.Daily) == 0:
		fmt.Printf("⚠️  No synced days in this window - run a backfill for this business\n")
	case len(summary.Daily) < summary.Days:
		fmt.Printf("⚠️  Only %d of %d days have data - some days may not be synced yet\n", len(summary.Daily), summary.Days)
	}
	if total.Spend > 0 && total.Leads == 0 {
		fmt.Printf("⚠️  Spend without leads - review lead form and messaging destinations\n")
	}
	if total.Leads > 0 {
		top, share := topChannel(total.Channels, total.Leads)
		if share > 50 {
			fmt.Printf("📈 %s drives %.1f%% of leads\n", top, share)
		}
	}
	if total.Impressions > 0 && total.HookRate < 20 && total.HookRate > 0 {
		fmt.Printf("🔍 Hook rate %.2f%% is low - test stronger openings in video creatives\n", total.HookRate)
	}
	fmt.Printf("═══════════════════════════════════════════════════════════════════════════════════\n")
}

func topChannel(c models.LeadChannels, leads int64) (string, float64) {
	name, best := "WhatsApp", c.WhatsApp
	if c.Instagram > best {
		name, best = "Instagram", c.Instagram
	}
	if c.Messenger > best {
		name, best = "Messenger", c.Messenger
	}
	return name, float64(best) / float64(leads) * 100
}

// formatNumber formats large integers with comma separators.
// Example: 1234567 becomes "1,234,567"
func formatNumber(n int64) string {
	str := strconv.FormatInt(n, 10)
	if len(str) <= 3 {
		return str
	}
	result := ""
	for i, digit := range str {
		if i > 0 && (len(str)-i)%3 == 0 && str[i-1] != '-' {
			result += ","
		}
		result += string(digit)
	}
	return result
}
