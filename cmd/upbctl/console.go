package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	upb "github.com/gwww/upb-lib"
	"github.com/gwww/upb-lib/events"
)

func consoleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactive console for sending commands and watching events",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, logger, err := newClient()
			if err != nil {
				return err
			}
			defer client.Disconnect()

			ctx, cancel := signalContext()
			defer cancel()

			if err := client.Connect(ctx); err != nil {
				return err
			}
			logger.Info("connected", "network", client.NetworkID())

			topics := []events.Topic{
				events.Connected, events.Disconnected,
				events.DeviceUpdated, events.LinkActivated,
			}
			for _, topic := range topics {
				defer client.Bus().Subscribe(topic, printEvent)()
			}

			return runConsole(ctx, client)
		},
	}
}

func printEvent(ev events.Event) {
	switch ev.Topic {
	case events.DeviceUpdated:
		fmt.Printf("< %s %q level=%d transitioning=%v\n",
			ev.Device.Addr.Key(), ev.Device.Name, ev.Device.Status.Level, ev.Device.Status.Transitioning)
	case events.LinkActivated:
		fmt.Printf("< %s %q %s\n", ev.Link.Addr.Key(), ev.Link.Name, ev.Link.LastAction)
	case events.Connected:
		fmt.Println("< connected")
	case events.Disconnected:
		fmt.Println("< disconnected")
	}
}

const consoleHelp = `commands:
  devices                    list known devices
  links                      list known links
  on <device> [level] [rate] turn a device on (default level 100)
  off <device> [rate]        turn a device off
  fade <device> <level> [rate]
  stop <device>              stop a fade in progress
  blink <device> [interval]  blink at interval (units of 1/60 s)
  status <device>            request a state report
  activate <link>            activate a link scene
  deactivate <link>          deactivate a link scene
  goto <link> <level> [rate] set all link members to a level
  quit                       exit
addresses are keys like 194_9_0 (device) or 194_4 (link)`

// runConsole reads commands from stdin until EOF, quit, or ctx cancellation.
func runConsole(ctx context.Context, client *upb.Client) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Println("upbctl console, type 'help' for commands")
	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			if fields[0] == "quit" || fields[0] == "exit" {
				return nil
			}
			if err := dispatch(ctx, client, fields); err != nil {
				fmt.Println("error:", err)
			}
		}
	}
}

func dispatch(ctx context.Context, client *upb.Client, fields []string) error {
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "help":
		fmt.Println(consoleHelp)
		return nil
	case "devices":
		for _, d := range client.Devices() {
			fmt.Printf("  %-12s %-30q level=%d dimmable=%v\n", d.Addr.Key(), d.Name, d.Status.Level, d.Dimmable)
		}
		return nil
	case "links":
		for _, l := range client.Links() {
			fmt.Printf("  %-12s %-30q members=%d\n", l.Addr.Key(), l.Name, len(l.Members))
		}
		return nil
	case "on":
		key, rest, err := keyArg(args)
		if err != nil {
			return err
		}
		level, rate, err := levelRateArgs(rest, 100)
		if err != nil {
			return err
		}
		return client.TurnOn(ctx, key, level, rate)
	case "off":
		key, rest, err := keyArg(args)
		if err != nil {
			return err
		}
		rate, err := rateArg(rest)
		if err != nil {
			return err
		}
		return client.TurnOff(ctx, key, rate)
	case "fade":
		key, rest, err := keyArg(args)
		if err != nil {
			return err
		}
		if len(rest) == 0 {
			return fmt.Errorf("fade needs a level")
		}
		level, rate, err := levelRateArgs(rest, 0)
		if err != nil {
			return err
		}
		return client.FadeStart(ctx, key, level, rate)
	case "stop":
		key, _, err := keyArg(args)
		if err != nil {
			return err
		}
		return client.FadeStop(ctx, key)
	case "blink":
		key, rest, err := keyArg(args)
		if err != nil {
			return err
		}
		interval := 30
		if len(rest) > 0 {
			interval, err = strconv.Atoi(rest[0])
			if err != nil {
				return fmt.Errorf("bad interval %q", rest[0])
			}
		}
		return client.Blink(ctx, key, interval)
	case "status":
		key, _, err := keyArg(args)
		if err != nil {
			return err
		}
		return client.RequestStatus(ctx, key)
	case "activate":
		key, _, err := keyArg(args)
		if err != nil {
			return err
		}
		return client.ActivateLink(ctx, key)
	case "deactivate":
		key, _, err := keyArg(args)
		if err != nil {
			return err
		}
		return client.DeactivateLink(ctx, key)
	case "goto":
		key, rest, err := keyArg(args)
		if err != nil {
			return err
		}
		if len(rest) == 0 {
			return fmt.Errorf("goto needs a level")
		}
		level, rate, err := levelRateArgs(rest, 0)
		if err != nil {
			return err
		}
		return client.LinkGoto(ctx, key, level, rate)
	default:
		return fmt.Errorf("unknown command %q, type 'help'", cmd)
	}
}

func keyArg(args []string) (string, []string, error) {
	if len(args) == 0 {
		return "", nil, fmt.Errorf("missing device or link address")
	}
	return args[0], args[1:], nil
}

// levelRateArgs parses an optional level then an optional fade rate in
// seconds. A missing rate means the device default.
func levelRateArgs(args []string, defaultLevel int) (int, float64, error) {
	level := defaultLevel
	if len(args) > 0 {
		var err error
		level, err = strconv.Atoi(args[0])
		if err != nil {
			return 0, 0, fmt.Errorf("bad level %q", args[0])
		}
		args = args[1:]
	}
	rate, err := rateArg(args)
	return level, rate, err
}

func rateArg(args []string) (float64, error) {
	if len(args) == 0 {
		return -1, nil
	}
	rate, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, fmt.Errorf("bad rate %q", args[0])
	}
	return rate, nil
}
