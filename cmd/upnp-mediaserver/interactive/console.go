// Package interactive provides the operator console for upnp-mediaserver.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/upnp-media/upnp-go/pkg/contentdirectory"
	"github.com/upnp-media/upnp-go/pkg/didl"
	"github.com/upnp-media/upnp-go/pkg/server"
	"github.com/upnp-media/upnp-go/pkg/ssdp"
)

// browsePage bounds the rows printed by browse.
const browsePage = 50

// Console handles interactive mode for upnp-mediaserver.
type Console struct {
	srv *server.MediaServer
	rl  *readline.Instance
}

// New creates a console for a started server.
func New(srv *server.MediaServer) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "mediaserver> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	c := &Console{srv: srv, rl: rl}
	if engine := srv.Engine(); engine != nil {
		engine.OnPeer(c.handlePeer)
	}
	return c, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline input.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Run reads commands until quit, EOF or ctx is done; cancel is called when
// the operator ends the session.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	w := c.rl.Stdout()
	printHelp(w)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(w, "Exiting...")
			cancel()
			return
		}

		if !Exec(ctx, c.srv, w, line) {
			fmt.Fprintln(w, "Exiting...")
			cancel()
			return
		}
	}
}

func (c *Console) handlePeer(ev ssdp.PeerEvent) {
	w := c.rl.Stdout()
	fmt.Fprintf(w, "\n[peer %s] %s %s\n", ev.Type, ev.Peer.USN, ev.Peer.Location)
	c.rl.Refresh()
}

// Exec runs one console command against srv and writes its output to w.
// It returns false when the command ends the session.
func Exec(ctx context.Context, srv *server.MediaServer, w io.Writer, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		printHelp(w)
	case "status", "s":
		cmdStatus(srv, w)
	case "peers", "p":
		cmdPeers(srv, w)
	case "search":
		cmdSearch(srv, w, args)
	case "subscriptions", "subs":
		cmdSubscriptions(srv, w)
	case "browse", "b":
		cmdBrowse(ctx, srv, w, args)
	case "connections", "conn":
		cmdConnections(srv, w)
	case "updateid":
		fmt.Fprintf(w, "SystemUpdateID: %d\n", srv.ContentDirectory().SystemUpdateID())
	case "quit", "exit", "q":
		return false
	default:
		fmt.Fprintf(w, "Unknown command: %s (type 'help')\n", cmd)
	}
	return true
}

func printHelp(w io.Writer) {
	fmt.Fprint(w, `Commands:
  status               Show server state and addresses
  peers                List UPnP root devices seen on the network
  search [st]          Send an M-SEARCH (default ssdp:all)
  subscriptions        List event subscriptions
  browse [id]          List the children of a container (default 0)
  connections          List ConnectionManager connections
  updateid             Show the current SystemUpdateID
  help                 Show this help
  quit                 Stop the server and exit
`)
}

func cmdStatus(srv *server.MediaServer, w io.Writer) {
	dev := srv.Device()
	fmt.Fprintf(w, "State:          %s\n", srv.State())
	fmt.Fprintf(w, "Device:         %s (%s)\n", dev.FriendlyName(), dev.UDN())
	fmt.Fprintf(w, "Location:       %s\n", srv.Location())
	if engine := srv.Engine(); engine != nil {
		fmt.Fprintf(w, "Advertising:    %s\n", strings.Join(engine.Advertised(), ", "))
	} else {
		fmt.Fprintln(w, "Advertising:    disabled")
	}
	fmt.Fprintf(w, "Subscriptions:  %d\n", srv.Events().Count())
	fmt.Fprintf(w, "SystemUpdateID: %d\n", srv.ContentDirectory().SystemUpdateID())
	for _, h := range srv.ContentDirectory().Backends() {
		fmt.Fprintf(w, "Backend:        %s (%s)\n", h.Name, h.Kind)
	}
}

func cmdPeers(srv *server.MediaServer, w io.Writer) {
	engine := srv.Engine()
	if engine == nil {
		fmt.Fprintln(w, "SSDP is disabled")
		return
	}
	roots := engine.Peers().Roots()
	if len(roots) == 0 {
		fmt.Fprintln(w, "No peers seen")
		return
	}
	for _, p := range roots {
		age := time.Since(p.LastSeen).Round(time.Second)
		fmt.Fprintf(w, "  %-48s %s\n", p.USN, p.Location)
		fmt.Fprintf(w, "    from %s, %s ago, max-age %s, %s\n", p.Addr, age, p.MaxAge, p.Server)
	}
}

func cmdSearch(srv *server.MediaServer, w io.Writer, args []string) {
	engine := srv.Engine()
	if engine == nil {
		fmt.Fprintln(w, "SSDP is disabled")
		return
	}
	st := ssdp.TargetAll
	if len(args) > 0 {
		st = args[0]
	}
	if err := engine.Search(st, 2); err != nil {
		fmt.Fprintf(w, "Search failed: %v\n", err)
		return
	}
	fmt.Fprintf(w, "M-SEARCH sent for %s; responses appear under 'peers'\n", st)
}

func cmdSubscriptions(srv *server.MediaServer, w io.Writer) {
	subs := srv.Events().All()
	if len(subs) == 0 {
		fmt.Fprintln(w, "No subscriptions")
		return
	}
	for _, s := range subs {
		fmt.Fprintf(w, "  %s %s [%s]\n", s.SID, s.ServiceID, s.State)
		fmt.Fprintf(w, "    seq %d, expires in %s, failures %d, queued %d\n",
			s.LastSeq, time.Until(s.Expires).Round(time.Second), s.Failures, s.Queued)
		for _, cb := range s.Callbacks {
			fmt.Fprintf(w, "    -> %s\n", cb)
		}
	}
}

func cmdBrowse(ctx context.Context, srv *server.MediaServer, w io.Writer, args []string) {
	id := "0"
	if len(args) > 0 {
		id = args[0]
	}
	res, err := srv.ContentDirectory().Browse(ctx, id, contentdirectory.BrowseDirectChildren, 0, browsePage, "")
	if err != nil {
		fmt.Fprintf(w, "Browse failed: %v\n", err)
		return
	}
	for _, obj := range res.Objects {
		kind := "item"
		if obj.Container {
			kind = "container"
		}
		fmt.Fprintf(w, "  %-24s %-9s %s", obj.ID, kind, obj.Title)
		if obj.Container {
			fmt.Fprintf(w, " (%d)", obj.ChildCount)
		}
		fmt.Fprintln(w)
		for _, r := range obj.Resources {
			fmt.Fprintf(w, "      %s\n", r.URL)
		}
	}
	fmt.Fprintf(w, "%d of %d shown, UpdateID %d\n", len(res.Objects), res.TotalMatches, res.UpdateID)
}

func cmdConnections(srv *server.MediaServer, w io.Writer) {
	cm := srv.ConnectionManager()
	for _, c := range cm.Connections() {
		fmt.Fprintf(w, "  %s %s %s %s\n", strconv.Itoa(int(c.ID)), c.Direction, c.Status, c.ProtocolInfo)
	}
	fmt.Fprintf(w, "Source formats: %s\n", didl.ProtocolInfoList(cm.SourceProtocolInfo()))
}
