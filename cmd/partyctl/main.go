package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/dylanconnolly/starparty-be/client"
	"github.com/dylanconnolly/starparty-be/logging"
	"github.com/dylanconnolly/starparty-be/protocol"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "partyctl",
		Usage: "Headless participant and inspection tool for the party server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Value: "http://localhost:8080", Usage: "party server base URL", EnvVars: []string{"PARTY_SERVER"}},
			&cli.StringFlag{Name: "log-level", Value: "info", EnvVars: []string{"LOG_LEVEL"}},
		},
		Before: func(c *cli.Context) error {
			logging.Init(c.String("log-level"), "")
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "join",
				Usage:     "Join a room and orbit until interrupted",
				ArgsUsage: "<room>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "display name (random if empty)"},
					&cli.DurationFlag{Name: "tick", Value: 16 * time.Millisecond, Usage: "interval between position updates"},
					&cli.Float64Flag{Name: "lat", Usage: "latitude for globe rooms"},
					&cli.Float64Flag{Name: "lng", Usage: "longitude for globe rooms"},
				},
				Action: join,
			},
			{
				Name:   "rooms",
				Usage:  "List rooms and their participant counts",
				Action: rooms,
			},
			{
				Name:   "schema",
				Usage:  "Print the JSON schema of the wire protocol",
				Action: schema,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("partyctl failed")
	}
}

func join(c *cli.Context) error {
	room := c.Args().First()
	if room == "" {
		return cli.Exit("room is required", 2)
	}

	endpoint, err := client.RoomURL(c.String("server"), room)
	if err != nil {
		return err
	}
	globe := c.IsSet("lat") || c.IsSet("lng")
	if globe {
		q := url.Values{}
		q.Set("lat", strconv.FormatFloat(c.Float64("lat"), 'f', -1, 64))
		q.Set("lng", strconv.FormatFloat(c.Float64("lng"), 'f', -1, 64))
		endpoint += "?" + q.Encode()
	}

	name := c.String("name")
	if name == "" {
		name = randomName()
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	logger := log.With().Str("room", room).Str("username", name).Logger()
	rec := client.NewReconciler(logRenderer{log: logger})
	defer rec.Release()

	conn, err := client.Dial(ctx, endpoint, nil, rec)
	if err != nil {
		return err
	}
	defer conn.Close()

	if !globe {
		if err := conn.Identify(ctx, name); err != nil {
			return err
		}
	}

	runErr := make(chan error, 1)
	go func() { runErr <- conn.Run(ctx) }()
	logger.Info().Str("endpoint", endpoint).Msg("joined")

	if globe {
		return wait(ctx, runErr)
	}

	emitter := client.NewEmitter(conn)
	ticker := time.NewTicker(c.Duration("tick"))
	defer ticker.Stop()

	var o orbit
	for {
		select {
		case <-ticker.C:
			emitter.Tick(o.next())
		case err := <-runErr:
			logger.Info().Uint64("sent", emitter.Sent()).Uint64("dropped", emitter.Dropped()).Msg("connection ended")
			return err
		case <-ctx.Done():
			logger.Info().Uint64("sent", emitter.Sent()).Uint64("dropped", emitter.Dropped()).Int("peers", rec.Len()).Msg("leaving")
			return nil
		}
	}
}

func wait(ctx context.Context, runErr <-chan error) error {
	select {
	case err := <-runErr:
		return err
	case <-ctx.Done():
		return nil
	}
}

func rooms(c *cli.Context) error {
	var summaries []struct {
		ID           string `json:"id"`
		Variant      string `json:"variant"`
		Participants int    `json:"participants"`
	}
	if err := getJSON(c.Context, c.String("server")+"/rooms", &summaries); err != nil {
		return err
	}

	for _, s := range summaries {
		fmt.Printf("%-20s %-6s %d\n", s.ID, s.Variant, s.Participants)
	}
	return nil
}

func schema(c *cli.Context) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(protocol.Schema())
}

func getJSON(ctx context.Context, u string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", u, res.Status)
	}
	return json.NewDecoder(res.Body).Decode(v)
}
