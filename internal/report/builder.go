package report

import (
	"slices"

	"github.com/marcosvitor-goonadgroup/adserver-api/internal/models"
)

// Sources are the four indexed result sets a report is built from.
type Sources struct {
	BySite *Index
	ByZone *Index
	ByAd   *Index
	Events *Index
}

// Build cross-joins the dates and ids observed in src into the nested report
// tree and prunes every branch that carries no data.
//
// The upstream stats API does not expose which zone served an ad, so an ad
// with a row on a given date is listed under every zone of that date. Zone
// rows are likewise not site-scoped and repeat under every site.
func Build(campaignID string, dates models.DateRange, src Sources) *models.Report {
	report := &models.Report{
		CampaignID: campaignID,
		DateRange:  dates,
		Sites:      make([]models.Site, 0),
	}

	days := unionDates(src.BySite, src.ByZone, src.ByAd)
	zoneIDs := src.ByZone.Secondaries()
	adIDs := src.ByAd.Secondaries()

	for _, siteID := range src.BySite.Secondaries() {
		site := models.Site{
			SiteID:   models.EntityID(siteID),
			SiteName: src.BySite.Name(siteID),
			Days:     make([]models.Day, 0),
		}

		for _, date := range days {
			day := models.Day{
				Date:  date,
				Stats: statsAt(src.BySite, date, siteID),
				Zones: make([]models.Zone, 0),
			}

			for _, zoneID := range zoneIDs {
				zone := models.Zone{
					ZoneID:   models.EntityID(zoneID),
					ZoneName: src.ByZone.Name(zoneID),
					Stats:    statsAt(src.ByZone, date, zoneID),
					Ads:      buildAds(src, date, adIDs),
				}
				if zone.Stats == nil && len(zone.Ads) == 0 {
					continue
				}
				day.Zones = append(day.Zones, zone)
			}

			if day.Stats == nil && len(day.Zones) == 0 {
				continue
			}
			site.Days = append(site.Days, day)
		}

		if len(site.Days) == 0 {
			continue
		}
		report.Sites = append(report.Sites, site)
	}

	return report
}

// buildAds lists every ad with a stats row on date. Ads without a row are
// skipped, never filled with zeros.
func buildAds(src Sources, date string, adIDs []string) []models.Ad {
	ads := make([]models.Ad, 0)
	for _, adID := range adIDs {
		row, ok := src.ByAd.Lookup(date, adID)
		if !ok {
			continue
		}
		ad := models.Ad{
			AdID:   models.EntityID(adID),
			AdName: src.ByAd.Name(adID),
			Stats:  NormalizeStats(row),
		}
		// events are not date-indexed upstream
		if ev, ok := src.Events.Lookup("", adID); ok {
			video := NormalizeVideo(ev)
			ad.Video = &video
		}
		ads = append(ads, ad)
	}
	return ads
}

func statsAt(idx *Index, date, id string) *models.StatsRow {
	row, ok := idx.Lookup(date, id)
	if !ok {
		return nil
	}
	stats := NormalizeStats(row)
	return &stats
}

// unionDates returns the distinct dates of all indexes sorted ascending.
// ISO dates sort correctly as strings.
func unionDates(indexes ...*Index) []string {
	seen := make(map[string]struct{})
	var dates []string
	for _, idx := range indexes {
		for _, d := range idx.Primaries() {
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			dates = append(dates, d)
		}
	}
	slices.Sort(dates)
	return dates
}
