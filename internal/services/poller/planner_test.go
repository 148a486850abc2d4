package poller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/BearBump/RiderTrack/internal/models"
)

type fixedRand struct{ v int }

func (r fixedRand) Intn(n int) int {
	if r.v >= n {
		return n - 1
	}
	return r.v
}

type PlannerSuite struct {
	suite.Suite
}

func (s *PlannerSuite) TestBackoffDelay() {
	p := DefaultPlanner()
	s.Equal(5*time.Minute, p.BackoffDelay(1))
	s.Equal(15*time.Minute, p.BackoffDelay(2))
	s.Equal(30*time.Minute, p.BackoffDelay(3))
	s.Equal(60*time.Minute, p.BackoffDelay(4))
	s.Equal(60*time.Minute, p.BackoffDelay(100))
}

func (s *PlannerSuite) TestNextCheckDelay_Delivered() {
	p := DefaultPlanner()
	s.Equal(365*24*time.Hour, p.NextCheckDelay(models.DeliveryStatusDelivered))
}

func (s *PlannerSuite) TestNextCheckDelay_Active_UsesRange() {
	p := NewPlanner(PlannerConfig{
		ActiveMinDelay: 30 * time.Second,
		ActiveMaxDelay: 90 * time.Second,
	}, fixedRand{v: 10})

	s.Equal(40*time.Second, p.NextCheckDelay(models.DeliveryStatusInDelivery))
	s.Equal(40*time.Second, p.NextCheckDelay(models.DeliveryStatusArriving))
}

func (s *PlannerSuite) TestNextCheckDelay_Preparing() {
	p := DefaultPlanner()
	s.Equal(5*time.Minute, p.NextCheckDelay(models.DeliveryStatusOrderComplete))
	s.Equal(5*time.Minute, p.NextCheckDelay(models.DeliveryStatusPreparing))
}

func (s *PlannerSuite) TestNextCheckDelay_Unknown() {
	p := DefaultPlanner()
	s.Equal(5*time.Minute, p.NextCheckDelay("SOMETHING_ELSE"))
}

func TestPlannerSuite(t *testing.T) {
	suite.Run(t, new(PlannerSuite))
}
