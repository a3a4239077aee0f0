package engine

import (
	"bikedash/internal/models"
	"runtime"
	"sort"
	"sync"
)

type aggStats struct {
	Rentals float64
	Days    int
}

// Overview aggregates the response column of a view into monthly totals
// and per-season / per-weather-situation totals. Sections whose grouping
// column is missing from the dataset are left empty.
func (v View) Overview(response string) (*models.Overview, error) {
	rentals, err := v.Values(response)
	if err != nil {
		return nil, err
	}
	seasons, _ := v.Values("season")
	weather, _ := v.Values("weathersit")

	data := &models.Overview{
		Response:       response,
		MonthlyRentals: make([]models.MonthlyItem, 0),
		SeasonTotals:   make([]models.TotalItem, 0),
		WeatherTotals:  make([]models.TotalItem, 0),
	}
	n := v.Len()
	if n == 0 {
		return data, nil
	}

	// 1. Dimensions
	// Months are indexed from the first month of the view
	first := v.Day(0).Time()
	last := v.Day(n - 1).Time()
	numMonths := (last.Year()-first.Year())*12 + int(last.Month()-first.Month()) + 1
	const numCodes = 5 // season and weathersit codes are 1..4

	// 2. Setup Workers
	numWorkers := runtime.NumCPU()
	if numWorkers > n {
		numWorkers = n
	}
	chunkSize := n / numWorkers

	type partialAgg struct {
		monthRev []float64
		season   [numCodes]aggStats
		weather  [numCodes]aggStats
	}

	results := make(chan *partialAgg, numWorkers)
	var wg sync.WaitGroup

	// 3. Parallel Loop
	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if i == numWorkers-1 {
			end = n
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			p := &partialAgg{monthRev: make([]float64, numMonths)}

			for j := s; j < e; j++ {
				rev := rentals[j]

				// A. Month (Array Indexing)
				t := v.Day(j).Time()
				mIdx := (t.Year()-first.Year())*12 + int(t.Month()-first.Month())
				p.monthRev[mIdx] += rev

				// B. Season / weather codes
				if seasons != nil {
					if c := int(seasons[j]); c > 0 && c < numCodes {
						p.season[c].Rentals += rev
						p.season[c].Days++
					}
				}
				if weather != nil {
					if c := int(weather[j]); c > 0 && c < numCodes {
						p.weather[c].Rentals += rev
						p.weather[c].Days++
					}
				}
			}
			results <- p
		}(start, end)
	}

	go func() { wg.Wait(); close(results) }()

	// 4. Merge Phase (Reducer)
	finalMonth := make([]float64, numMonths)
	var finalSeason, finalWeather [numCodes]aggStats
	for p := range results {
		for i := range finalMonth {
			finalMonth[i] += p.monthRev[i]
		}
		for c := 1; c < numCodes; c++ {
			finalSeason[c].Rentals += p.season[c].Rentals
			finalSeason[c].Days += p.season[c].Days
			finalWeather[c].Rentals += p.weather[c].Rentals
			finalWeather[c].Days += p.weather[c].Days
		}
	}

	// 5. Build Result
	for i, rev := range finalMonth {
		month := first.AddDate(0, i, 1-first.Day())
		data.MonthlyRentals = append(data.MonthlyRentals, models.MonthlyItem{
			Month: month.Format("2006-01"), Rentals: rev,
		})
	}
	for c := 1; c < numCodes; c++ {
		if finalSeason[c].Days > 0 {
			data.SeasonTotals = append(data.SeasonTotals, models.TotalItem{
				Name: CategoryLabel("season", float64(c)), Rentals: finalSeason[c].Rentals, Days: finalSeason[c].Days,
			})
		}
		if finalWeather[c].Days > 0 {
			data.WeatherTotals = append(data.WeatherTotals, models.TotalItem{
				Name: CategoryLabel("weathersit", float64(c)), Rentals: finalWeather[c].Rentals, Days: finalWeather[c].Days,
			})
		}
	}

	// Sort totals, highest first
	sort.Slice(data.SeasonTotals, func(i, j int) bool { return data.SeasonTotals[i].Rentals > data.SeasonTotals[j].Rentals })
	sort.Slice(data.WeatherTotals, func(i, j int) bool { return data.WeatherTotals[i].Rentals > data.WeatherTotals[j].Rentals })

	return data, nil
}
