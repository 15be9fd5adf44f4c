package coordinator

import (
	"context"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/bardlex/noso2m/internal/peer"
	"github.com/bardlex/noso2m/pkg/errors"
	"github.com/bardlex/noso2m/pkg/log"
)

// MaxClockDrift is how far the local clock may run ahead of the network
const MaxClockDrift = 3

// CheckClock compares the local clock with the first node that answers
// NSLTIME. Mining against a clock running ahead of the network produces
// solutions nodes reject as mistimed.
func CheckClock(ctx context.Context, nodes []peer.Peer, api NodeAPI, now func() time.Time, logger *log.Logger) error {
	if now == nil {
		now = time.Now
	}
	order := slices.Clone(nodes)
	rand.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})

	for _, node := range order {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		netTime, err := api.Timestamp(ctx, node)
		if err != nil {
			logger.WithPeer(node.Name, node.Host, node.Port).WithError(err).Debug("node did not answer time request")
			continue
		}

		local := now().Unix()
		drift := local - netTime
		logger.Info("network time checked", "node", node.String(), "local", local, "network", netTime, "drift_seconds", drift)
		if drift > MaxClockDrift {
			return errors.Newf(errors.ErrorTypeConfig, "check_clock",
				"local time is %d seconds ahead of network time, adjust the system clock", drift).
				WithContext("node", node.String())
		}
		return nil
	}

	return errors.New(errors.ErrorTypeNetwork, "check_clock", "no node answered the time request")
}
