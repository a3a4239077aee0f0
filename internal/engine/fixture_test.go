package engine

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"bikedash/internal/models"

	"github.com/stretchr/testify/require"
)

const dayHeader = "instant,dteday,season,yr,mnth,holiday,weekday,workingday,weathersit,temp,atemp,hum,windspeed,casual,registered,cnt"

// dayCSV generates n consecutive days from 2011-01-01 in the day.csv layout.
// casual is 100 + i%50 and registered is 1000 + 2i, so cnt grows with i.
func dayCSV(n int) []byte {
	var b strings.Builder
	b.WriteString(dayHeader + "\n")
	first := time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		t := first.AddDate(0, 0, i)
		m := int(t.Month())
		wd := int(t.Weekday())
		working := 0
		if wd >= 1 && wd <= 5 {
			working = 1
		}
		temp := 0.2 + 0.5*float64(m)/12 + float64(i%7)*0.01
		casual := 100 + i%50
		registered := 1000 + 2*i
		fmt.Fprintf(&b, "%d,%s,%d,%d,%d,0,%d,%d,%d,%.6f,%.6f,%.6f,%.6f,%d,%d,%d\n",
			i+1, t.Format("2006-01-02"), m%12/3+1, t.Year()-2011, m, wd, working, i%3+1,
			temp, temp*0.9, 0.5+float64(i%10)*0.03, 0.1+float64(i%5)*0.02,
			casual, registered, casual+registered)
	}
	return []byte(b.String())
}

func testStore(t *testing.T, n int) *ColumnStore {
	t.Helper()
	store, err := ParseColumnar(dayCSV(n))
	require.NoError(t, err)
	return store
}

func day(t *testing.T, s string) models.Day {
	t.Helper()
	d, err := models.ParseDay(s)
	require.NoError(t, err)
	return d
}
