package fingerprint_test

import (
	"testing"

	"github.com/okian/simbot/internal/domain/fingerprint"
	"github.com/okian/simbot/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestFingerprint(t *testing.T) {
	convey.Convey("Given simulation configurations", t, func() {
		base := model.SimulationRequest{
			Region:       model.RegionUS,
			RealmSlug:    "Aerie Peak",
			Character:    "Redrimer",
			Spec:         model.SpecFrost,
			Talents:      "1133121",
			FightProfile: "Patchwerk",
			Iterations:   100,
		}

		convey.Convey("When character, spec and fight profile are equal", func() {
			other := base
			other.Iterations = 10000
			other.Talents = "2222222"
			other.Character = "redrimer"
			other.RealmSlug = "aerie peak"
			other.Region = "us"

			convey.Convey("Then the keys are equal", func() {
				convey.So(fingerprint.ForRequest(other), convey.ShouldEqual, fingerprint.ForRequest(base))
				convey.So(fingerprint.Of(model.RegionUS, "Aerie Peak", "Redrimer", "frost", "Patchwerk"), convey.ShouldEqual, fingerprint.ForRequest(base))
			})
		})

		convey.Convey("When any keyed field differs", func() {
			byPlayer := base
			byPlayer.Character = "Lunaraura"
			bySpec := base
			bySpec.Spec = model.SpecFire
			byProfile := base
			byProfile.FightProfile = "HecticAddCleave"
			byRealm := base
			byRealm.RealmSlug = "Stormrage"
			byRegion := base
			byRegion.Region = model.RegionEU

			convey.Convey("Then the keys differ", func() {
				k := fingerprint.ForRequest(base)
				convey.So(fingerprint.ForRequest(byPlayer), convey.ShouldNotEqual, k)
				convey.So(fingerprint.ForRequest(bySpec), convey.ShouldNotEqual, k)
				convey.So(fingerprint.ForRequest(byProfile), convey.ShouldNotEqual, k)
				convey.So(fingerprint.ForRequest(byRealm), convey.ShouldNotEqual, k)
				convey.So(fingerprint.ForRequest(byRegion), convey.ShouldNotEqual, k)
			})
		})

		convey.Convey("When two characters share a name and spec on different realms", func() {
			convey.Convey("Then they never share a simulation", func() {
				convey.So(fingerprint.Of(model.RegionUS, "Aerie Peak", "Xin", model.SpecArms, "Patchwerk"),
					convey.ShouldNotEqual, fingerprint.Of(model.RegionUS, "Stormrage", "Xin", model.SpecArms, "Patchwerk"))
			})
		})

		convey.Convey("When the character spec uses the historical alias", func() {
			convey.Convey("Then it keys like the normalized name", func() {
				convey.So(fingerprint.Of(model.RegionUS, "Aerie Peak", "Verrota", "beastmastery", "Patchwerk"),
					convey.ShouldEqual, fingerprint.Of(model.RegionUS, "Aerie Peak", "Verrota", model.SpecBeastMastery, "Patchwerk"))
			})
		})

		convey.Convey("When fields shift characters between each other", func() {
			convey.Convey("Then the length prefix keeps them apart", func() {
				convey.So(fingerprint.Of(model.RegionUS, "r", "ab", "c", "x"), convey.ShouldNotEqual, fingerprint.Of(model.RegionUS, "r", "a", "bc", "x"))
			})
		})

		convey.Convey("Then keys are 16 hex digits", func() {
			convey.So(len(fingerprint.ForRequest(base)), convey.ShouldEqual, 16)
		})
	})
}
