package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"time"

	"github.com/osrg/gobgp/v3/pkg/packet/bgp"

	"github.com/danl5/bgpfsm/pkg/fsm"
	"github.com/danl5/bgpfsm/pkg/model"
)

var (
	outputPath = flag.String("o", "./fsm_visual", "output path")
)

func main() {
	flag.Parse()

	f := fsm.New(nullPeer{}, fsm.Options{Logger: slog.Default()})
	visualStr := f.Visualize()

	out, err := os.OpenFile(*outputPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		panic(err)
	}
	defer out.Close()

	if _, err := out.WriteString(visualStr); err != nil {
		panic(err)
	}

	fmt.Println("Visualization finished")
}

// nullPeer is just enough of model.PeerInfo to build an FSM for
// visualization. New reads AdminDown once; none of its other methods are
// ever invoked since no events are ever posted to f.
type nullPeer struct{}

func (nullPeer) RouterID() netip.Addr              { return netip.Addr{} }
func (nullPeer) LocalAS() uint16                   { return 0 }
func (nullPeer) ConfiguredHoldTime() time.Duration { return 0 }
func (nullPeer) AdminDown() bool                   { return false }
func (nullPeer) DeliverUpdate(*bgp.BGPUpdate)      {}

var _ model.PeerInfo = nullPeer{}
