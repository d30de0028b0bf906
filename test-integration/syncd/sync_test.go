package integration

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/activity"
	v1 "github.com/GlobalTax/Crmcapittal-sub010/internal/api/v1"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/fetch"
	pkgsync "github.com/GlobalTax/Crmcapittal-sub010/internal/sync"
	"github.com/GlobalTax/Crmcapittal-sub010/test-integration/syncd/helpers"
)

// itemsOf returns the item count of the payload held by a session view
func itemsOf(view pkgsync.SessionView) int {
	data, err := json.Marshal(view.Data)
	Expect(err).NotTo(HaveOccurred())
	var payload struct {
		Items int `json:"items"`
	}
	Expect(json.Unmarshal(data, &payload)).To(Succeed())
	return payload.Items
}

var _ = Describe("Session synchronization", Label("sync"), func() {
	var (
		tempDir  string
		upstream *helpers.Upstream
		daemon   *helpers.DaemonTestHelper
	)

	session := func(id string) func() v1.SessionResponse {
		return func() v1.SessionResponse {
			resp, err := daemon.GetSession(id)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}
	}

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()
		upstream = helpers.NewUpstream(3)
	})

	AfterEach(func() {
		if daemon != nil {
			Expect(daemon.Stop()).To(Succeed())
			daemon = nil
		}
		upstream.Close()
	})

	Context("with a healthy upstream", func() {
		BeforeEach(func() {
			configFile := helpers.WriteConfigYAML(tempDir, helpers.ConfigSpec{
				StatePath:   filepath.Join(tempDir, "state"),
				StaticToken: "crm-token",
				Sessions: []helpers.SessionSpec{
					{ID: "deals", URL: upstream.URL + "/deals", BaseInterval: "200ms", MaxInterval: "4s"},
				},
			})
			daemon = helpers.NewDaemonTestHelper(ctx, configFile)
			Expect(daemon.Start()).To(Succeed())
		})

		It("fetches on start and serves the data", func() {
			Eventually(func() int {
				return itemsOf(session("deals")().Session)
			}, 5*time.Second, 50*time.Millisecond).Should(Equal(3))

			resp := session("deals")()
			Expect(resp.Session.LastOutcome).NotTo(BeNil())
			Expect(resp.Session.LastOutcome.Success).To(BeTrue())
			Expect(resp.Session.ConsecutiveErrors).To(BeZero())
			Expect(resp.Config.BaseInterval).To(Equal("200ms"))
			Expect(upstream.AuthHeaders()).To(ContainElement("Bearer crm-token"))
		})

		It("keeps polling at the base interval", func() {
			Eventually(upstream.Requests, 5*time.Second, 50*time.Millisecond).Should(BeNumerically(">=", 3))

			upstream.SetItems(5)
			Eventually(func() int {
				return itemsOf(session("deals")().Session)
			}, 5*time.Second, 50*time.Millisecond).Should(Equal(5))
			Expect(session("deals")().Session.CurrentInterval).To(Equal(200 * time.Millisecond))
		})

		It("stretches the interval while hidden and restores it when visible", func() {
			Eventually(func() pkgsync.Phase {
				return session("deals")().Session.Phase
			}, 5*time.Second, 50*time.Millisecond).Should(Equal(pkgsync.PhaseScheduled))

			status, err := daemon.PostEngagement(activity.VisibilityEvent(false))
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(http.StatusNoContent))

			// ten times the base interval
			Eventually(func() time.Duration {
				return session("deals")().Session.CurrentInterval
			}, 5*time.Second, 50*time.Millisecond).Should(Equal(2 * time.Second))

			status, err = daemon.PostEngagement(activity.VisibilityEvent(true))
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(http.StatusNoContent))

			Eventually(func() time.Duration {
				return session("deals")().Session.CurrentInterval
			}, 5*time.Second, 50*time.Millisecond).Should(Equal(200 * time.Millisecond))
		})

		It("rejects malformed engagement events", func() {
			status, err := daemon.PostEngagement(activity.Event{Type: "scroll"})
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(http.StatusBadRequest))
		})

		It("reconfigures, refreshes and disposes sessions", func() {
			Eventually(func() pkgsync.Phase {
				return session("deals")().Session.Phase
			}, 5*time.Second, 50*time.Millisecond).Should(Equal(pkgsync.PhaseScheduled))

			base := "10s"
			status, err := daemon.Reconfigure("deals", v1.ReconfigureRequest{BaseInterval: &base, MaxInterval: &base})
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(BeNumerically("<", 300))
			Eventually(func() time.Duration {
				return session("deals")().Session.CurrentInterval
			}, 5*time.Second, 50*time.Millisecond).Should(Equal(10 * time.Second))

			before := upstream.Requests()
			status, err = daemon.Refresh("deals")
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(BeNumerically("<", 300))
			Eventually(upstream.Requests, 5*time.Second, 50*time.Millisecond).Should(BeNumerically(">", before))

			status, err = daemon.Dispose("deals")
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(BeNumerically("<", 300))

			_, err = daemon.GetSession("deals")
			Expect(err).To(MatchError(ContainSubstring("returned 404")))

			status, err = daemon.Refresh("deals")
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(http.StatusNotFound))
		})
	})

	Context("with a failing upstream", func() {
		BeforeEach(func() {
			upstream.SetStatus(http.StatusServiceUnavailable)
			configFile := helpers.WriteConfigYAML(tempDir, helpers.ConfigSpec{
				StatePath: filepath.Join(tempDir, "state"),
				Sessions: []helpers.SessionSpec{
					{ID: "deals", URL: upstream.URL + "/deals", BaseInterval: "100ms", MaxInterval: "800ms", Multiplier: "2"},
				},
			})
			daemon = helpers.NewDaemonTestHelper(ctx, configFile)
			Expect(daemon.Start()).To(Succeed())
		})

		It("backs off up to the maximum interval and recovers on success", func() {
			Eventually(func() time.Duration {
				return session("deals")().Session.CurrentInterval
			}, 10*time.Second, 20*time.Millisecond).Should(Equal(800 * time.Millisecond))

			resp := session("deals")()
			Expect(resp.Session.ConsecutiveErrors).To(BeNumerically(">=", 3))
			Expect(resp.Session.LastOutcome).NotTo(BeNil())
			Expect(resp.Session.LastOutcome.Success).To(BeFalse())
			Expect(resp.Session.LastSuccessAt).To(BeNil())

			upstream.SetStatus(http.StatusOK)
			Eventually(func() uint {
				return session("deals")().Session.ConsecutiveErrors
			}, 10*time.Second, 20*time.Millisecond).Should(BeZero())

			resp = session("deals")()
			Expect(resp.Session.CurrentInterval).To(Equal(100 * time.Millisecond))
			Expect(resp.Session.LastSuccessAt).NotTo(BeNil())
			Expect(itemsOf(resp.Session)).To(Equal(3))
		})

		It("classifies rejected credentials as auth failures", func() {
			upstream.SetStatus(http.StatusUnauthorized)
			Eventually(func() fetch.Kind {
				o := session("deals")().Session.LastOutcome
				if o == nil {
					return ""
				}
				return o.Kind
			}, 10*time.Second, 20*time.Millisecond).Should(Equal(fetch.KindAuth))
		})
	})

	Context("across restarts", func() {
		writeConfig := func(fetchOnStart bool) string {
			return helpers.WriteConfigYAML(tempDir, helpers.ConfigSpec{
				StateType: "sqlite",
				StatePath: filepath.Join(tempDir, "state.db"),
				Sessions: []helpers.SessionSpec{
					{ID: "deals", URL: upstream.URL + "/deals", BaseInterval: "1m", MaxInterval: "5m", FetchOnStart: &fetchOnStart},
				},
			})
		}

		It("restores the persisted state", func() {
			daemon = helpers.NewDaemonTestHelper(ctx, writeConfig(true))
			Expect(daemon.Start()).To(Succeed())

			Eventually(func() *time.Time {
				return session("deals")().Session.LastSuccessAt
			}, 5*time.Second, 50*time.Millisecond).ShouldNot(BeNil())
			first := session("deals")().Session

			Expect(daemon.Stop()).To(Succeed())
			requests := upstream.Requests()

			// without a fetch on start the second run only knows the persisted state
			daemon = helpers.NewDaemonTestHelper(ctx, writeConfig(false))
			Expect(daemon.Start()).To(Succeed())

			restored := session("deals")().Session
			Expect(restored.LastSuccessAt).NotTo(BeNil())
			Expect(restored.LastSuccessAt.Equal(*first.LastSuccessAt)).To(BeTrue())
			Expect(restored.Seq).To(BeNumerically(">=", first.Seq))
			Expect(restored.LastOutcome).NotTo(BeNil())
			Expect(restored.LastOutcome.Success).To(BeTrue())
			Expect(upstream.Requests()).To(Equal(requests))
		})
	})
})
