package main

import (
	"hash/fnv"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/profitlens/profitlens/internal/alert"
	"github.com/profitlens/profitlens/internal/clock"
	"github.com/profitlens/profitlens/internal/config"
	"github.com/profitlens/profitlens/internal/costing"
	"github.com/profitlens/profitlens/internal/customer"
	"github.com/profitlens/profitlens/internal/event"
	"github.com/profitlens/profitlens/internal/invoice"
	"github.com/profitlens/profitlens/internal/margin"
	"github.com/profitlens/profitlens/internal/migration"
	"github.com/profitlens/profitlens/internal/observability/metrics"
	"github.com/profitlens/profitlens/internal/organization"
	"github.com/profitlens/profitlens/internal/pricing"
	"github.com/profitlens/profitlens/internal/rate"
	"github.com/profitlens/profitlens/internal/server"
	"github.com/profitlens/profitlens/internal/worker"
	"github.com/profitlens/profitlens/pkg/db"
	"github.com/profitlens/profitlens/pkg/log"
	"go.uber.org/fx"
)

// newSnowflakeNode derives the node number from the hostname so replicas in
// the same deployment do not mint colliding IDs.
func newSnowflakeNode() (*snowflake.Node, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "profitlens"
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(hostname))
	return snowflake.NewNode(int64(h.Sum32() % 1024))
}

func main() {
	app := fx.New(
		config.Module,
		log.Module,
		db.Module,
		clock.Module,
		fx.Provide(newSnowflakeNode),

		migration.Module,
		metrics.Module,

		organization.Module,
		customer.Module,
		invoice.Module,
		rate.Module,
		costing.Module,
		margin.Module,
		alert.Module,
		event.Module,
		pricing.Module,

		server.Module,
		worker.Module,
	)
	app.Run()
}
