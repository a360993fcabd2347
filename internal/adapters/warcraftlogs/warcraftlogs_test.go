package warcraftlogs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/simbot/internal/domain/model"
)

// fixtureNow is 2017-07-20T00:00:00Z, the reference time of testdata/parses_redrimer.json.
var fixtureNow = time.UnixMilli(1500508800000).UTC()

func loadTalents(t *testing.T) model.TalentData {
	t.Helper()
	b, err := os.ReadFile("testdata/talents.json")
	if err != nil {
		t.Fatal(err)
	}
	var data model.TalentData
	if err := json.Unmarshal(b, &data); err != nil {
		t.Fatal(err)
	}
	return data
}

func newClient(t *testing.T, srv *httptest.Server) *Client {
	c := New("key", WithBaseURL(srv.URL), WithClock(func() time.Time { return fixtureNow }))
	c.SetTalentData(loadTalents(t))
	return c
}

func TestConvertTalents(t *testing.T) {
	Convey("Given the talent table", t, func() {
		c := New("key")
		So(c.HasTalentData(), ShouldBeFalse)
		c.SetTalentData(loadTalents(t))
		So(c.HasTalentData(), ShouldBeTrue)

		Convey("When converting a frost mage build", func() {
			got, err := c.convertTalents("Mage", "Frost", []wclTalent{
				{"Ray of Frost", 205021}, {"Shimmer", 212653}, {"Incanter's Flow", 1463},
				{"Splitting Ice", 56377}, {"Frigid Winds", 235224}, {"Unstable Magic", 157976},
				{"Thermal Void", 155149},
			})

			Convey("Then columns are reported 1-indexed", func() {
				So(err, ShouldBeNil)
				So(got, ShouldResemble, []int{1, 1, 3, 3, 1, 2, 1})
			})
		})

		Convey("When converting a havoc demon hunter build", func() {
			got, err := c.convertTalents("DemonHunter", "Havoc", []wclTalent{
				{"Fel Mastery", 192939}, {"Prepared", 203551}, {"Bloodlet", 206473},
				{"Soul Rending", 204909}, {"Momentum", 206476}, {"Unleashed Power", 206477},
				{"Demonic", 213410},
			})

			Convey("Then the expected digits come out", func() {
				So(err, ShouldBeNil)
				So(got, ShouldResemble, []int{1, 1, 3, 3, 1, 2, 3})
			})
		})

		Convey("When a spec-specific talent is logged under another spec", func() {
			got, err := c.convertTalents("Mage", "Fire", []wclTalent{{"Ray of Frost", 205021}})

			Convey("Then the tier is not matched", func() {
				So(err, ShouldBeNil)
				So(got, ShouldBeEmpty)
			})
		})

		Convey("When the class is unknown", func() {
			_, err := c.convertTalents("Bard", "Lute", nil)
			So(errors.Is(err, ErrInvalidArgument), ShouldBeTrue)
		})
	})

	Convey("Given no talent table", t, func() {
		_, err := New("key").convertTalents("Mage", "Frost", nil)
		So(errors.Is(err, ErrNoTalentData), ShouldBeTrue)
	})
}

func TestGetAllParses(t *testing.T) {
	Convey("Given a log service", t, func() {
		parses, err := os.ReadFile("testdata/parses_redrimer.json")
		So(err, ShouldBeNil)

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/parses/character/Redrimer/Aerie Peak/US":
				if r.URL.Query().Get("metric") != "dps" {
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				_, _ = w.Write(parses)
			case "/parses/character/Nobody/Aerie Peak/US":
				_, _ = w.Write([]byte(`[]`))
			case "/parses/character/Retired/Aerie Peak/US":
				_, _ = w.Write([]byte(`[{"name":"Goroth","difficulty":4,"specs":[{"class":"Mage","spec":"Frost","data":[{"start_time":1400000000000,"persecondamount":1,"ilvl":1,"historical_percent":1,"talents":[]}]}]}]`))
			case "/parses/character/Broken/Aerie Peak/US":
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`<html>oops</html>`))
			case "/parses/character/Invalid/Aerie Peak/US":
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"status":400,"error":"Invalid character name/server/region specified."}`))
			}
		}))
		defer srv.Close()
		c := newClient(t, srv)
		ctx := context.Background()

		Convey("When the player has kills in the window", func() {
			kills, err := c.GetAllParses(ctx, "Redrimer", "Aerie Peak", model.RegionUS, "dps", model.DifficultyHeroic, 3)

			Convey("Then only recent kills at the difficulty are returned", func() {
				So(err, ShouldBeNil)
				So(len(kills["Goroth"]), ShouldEqual, 2)
				So(kills["Goroth"][0].DPS, ShouldEqual, 800000.0)
				So(kills["Goroth"][1].ItemLevel, ShouldEqual, 907.0)
				So(kills["Goroth"][0].Talents, ShouldResemble, []int{1, 1, 3, 3, 1, 2, 1})
				So(kills["Goroth"][0].Spec, ShouldEqual, "Frost")
			})

			Convey("And bosses without recent kills map to an empty list", func() {
				records, ok := kills["Harjatan"]
				So(ok, ShouldBeTrue)
				So(records, ShouldBeEmpty)
			})

			Convey("And other difficulties are left out", func() {
				_, ok := kills["Mistress Sassz'ine"]
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When the player has no logs at all", func() {
			_, err := c.GetAllParses(ctx, "Nobody", "Aerie Peak", model.RegionUS, "dps", model.DifficultyHeroic, 3)
			So(errors.Is(err, ErrNoLogs), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "No logs on record.")
		})

		Convey("When every kill is older than the window", func() {
			_, err := c.GetAllParses(ctx, "Retired", "Aerie Peak", model.RegionUS, "dps", model.DifficultyHeroic, 3)
			So(errors.Is(err, ErrNoRecentKills), ShouldBeTrue)
		})

		Convey("When the service fails", func() {
			_, err := c.GetAllParses(ctx, "Broken", "Aerie Peak", model.RegionUS, "dps", model.DifficultyHeroic, 3)

			Convey("Then a ServerError carries the status", func() {
				var se *ServerError
				So(errors.As(err, &se), ShouldBeTrue)
				So(se.StatusCode, ShouldEqual, http.StatusInternalServerError)
				So(err.Error(), ShouldEqual, "WarcraftLogs server error 500")
			})
		})

		Convey("When the service rejects the character", func() {
			_, err := c.GetAllParses(ctx, "Invalid", "Aerie Peak", model.RegionUS, "dps", model.DifficultyHeroic, 3)

			Convey("Then a ServerError wraps the upstream message", func() {
				var se *ServerError
				So(errors.As(err, &se), ShouldBeTrue)
				So(se.StatusCode, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When arguments are invalid", func() {
			_, err := c.GetAllParses(ctx, "Redrimer", "Aerie Peak", model.RegionUS, "dps", model.DifficultyHeroic, 0)
			So(errors.Is(err, ErrInvalidArgument), ShouldBeTrue)
			_, err = c.GetAllParses(ctx, "", "Aerie Peak", model.RegionUS, "dps", model.DifficultyHeroic, 3)
			So(errors.Is(err, ErrInvalidArgument), ShouldBeTrue)
		})
	})
}
