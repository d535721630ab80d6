package exchange

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rpggio/lullaby/internal/domain/action"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

func sampleState() action.ProfileState {
	at := func(h, m int) time.Time { return time.Date(2026, 3, 1, h, m, 0, 0, time.UTC) }
	feedEnd := at(20, 30)
	diaper := at(21, 0)
	volume := 120
	return action.FromSnapshots([]action.Snapshot{
		{ID: "s2", ProfileID: "p1", Category: action.CategorySleep, StartDate: at(22, 0), UpdatedAt: at(22, 0)},
		{
			ID: "f1", ProfileID: "p1", Category: action.CategoryFeeding, StartDate: at(20, 0), EndDate: &feedEnd,
			FeedingType: action.FeedingBottle, BottleType: action.BottleFormula, BottleVolume: &volume, UpdatedAt: feedEnd,
		},
		{ID: "d1", ProfileID: "p1", Category: action.CategoryDiaper, StartDate: diaper, EndDate: &diaper, DiaperType: action.DiaperPee, UpdatedAt: diaper},
	})
}

func TestExport_Golden(t *testing.T) {
	doc := Export("p1", sampleState(), time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, doc))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "export", buf.Bytes())
}

func TestDecode_RoundTripsExport(t *testing.T) {
	state := sampleState()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Export("p1", state, time.Now())))

	doc, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, Version, doc.Version)
	require.True(t, state.Equal(doc.State()))
}

func TestDecode_RejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"not json":         `{`,
		"wrong version":    `{"version": 2, "profile_id": "p1", "active": [], "history": []}`,
		"missing history":  `{"version": 1, "profile_id": "p1", "active": []}`,
		"unknown category": `{"version": 1, "profile_id": "p1", "active": [], "history": [{"id": "a", "category": "bath", "start_date": "2026-03-01T20:00:00Z", "updated_at": "2026-03-01T20:00:00Z"}]}`,
		"bad timestamp":    `{"version": 1, "profile_id": "p1", "active": [], "history": [{"id": "a", "category": "sleep", "start_date": "yesterday", "updated_at": "2026-03-01T20:00:00Z"}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(body))
			require.ErrorIs(t, err, ErrInvalidDocument)
		})
	}
}

func TestDocument_StateAttributesProfile(t *testing.T) {
	body := `{"version": 1, "profile_id": "p9", "active": [], "history": [
		{"id": "a", "profile_id": "someone-else", "category": "diaper", "diaper_type": "poo",
		 "start_date": "2026-03-01T20:00:00Z", "updated_at": "2026-03-01T20:00:00Z"}
	]}`
	doc, err := Decode(strings.NewReader(body))
	require.NoError(t, err)

	st := doc.State()
	s, ok := st.Find("a")
	require.True(t, ok)
	require.Equal(t, "p9", s.ProfileID)
	// instant actions always end where they start
	require.NotNil(t, s.EndDate)
	require.True(t, s.EndDate.Equal(s.StartDate))
}
