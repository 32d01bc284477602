package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	addrFlag := flag.String("addr", "127.0.0.1:8080", "daemon HTTP address")
	jsonFlag := flag.Bool("json", false, "output raw JSON")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c := &client{
		base: "http://" + *addrFlag,
		http: &http.Client{Timeout: 10 * time.Second},
		json: *jsonFlag,
	}

	switch args[0] {
	case "status":
		c.get("/status")
	case "health":
		c.get("/health")
	case "groups":
		c.get("/list-groups")
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: wagatectl send <number>[,<number>...] <message> [delayMs]")
			os.Exit(1)
		}
		cmdSend(c, args[1:])
	case "send-group":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: wagatectl send-group <groupName> <message>")
			os.Exit(1)
		}
		c.post("/send-group", map[string]any{"groupName": args[1], "message": args[2]})
	case "schedule":
		if len(args) < 4 {
			fmt.Fprintln(os.Stderr, "usage: wagatectl schedule <number>[,<number>...] <message> <epochMs>")
			os.Exit(1)
		}
		cmdSchedule(c, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: wagatectl [--addr <host:port>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                                  Show daemon status")
	fmt.Fprintln(os.Stderr, "  health                                  Check daemon liveness")
	fmt.Fprintln(os.Stderr, "  groups                                  List joined groups")
	fmt.Fprintln(os.Stderr, "  send <numbers> <message> [delayMs]      Queue a bulk text send")
	fmt.Fprintln(os.Stderr, "  send-group <groupName> <message>        Send to a group by name")
	fmt.Fprintln(os.Stderr, "  schedule <numbers> <message> <epochMs>  Schedule a future send")
}

func cmdSend(c *client, args []string) {
	body := map[string]any{
		"numbers": strings.Split(args[0], ","),
		"message": args[1],
	}
	if len(args) > 2 {
		var delay uint
		if _, err := fmt.Sscanf(args[2], "%d", &delay); err != nil {
			fmt.Fprintf(os.Stderr, "error: bad delay %q\n", args[2])
			os.Exit(1)
		}
		body["delay"] = delay
	}
	c.post("/send", body)
}

func cmdSchedule(c *client, args []string) {
	var ts int64
	if _, err := fmt.Sscanf(args[2], "%d", &ts); err != nil {
		fmt.Fprintf(os.Stderr, "error: bad timestamp %q\n", args[2])
		os.Exit(1)
	}
	c.post("/schedule", map[string]any{
		"numbers":   strings.Split(args[0], ","),
		"message":   args[1],
		"timestamp": ts,
	})
}

type client struct {
	base string
	http *http.Client
	json bool
}

func (c *client) get(path string) {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot reach daemon at %s: %v\n", c.base, err)
		os.Exit(1)
	}
	c.render(resp)
}

func (c *client) post(path string, body map[string]any) {
	raw, err := json.Marshal(body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	resp, err := c.http.Post(c.base+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot reach daemon at %s: %v\n", c.base, err)
		os.Exit(1)
	}
	c.render(resp)
}

func (c *client) render(resp *http.Response) {
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if c.json {
		fmt.Println(string(bytes.TrimSpace(raw)))
	} else {
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			fmt.Println(string(raw))
		} else {
			for k, v := range fields {
				fmt.Printf("%s: %v\n", k, v)
			}
		}
	}

	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
}
