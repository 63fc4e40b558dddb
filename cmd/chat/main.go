package main

import (
	"bufio"
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

// Terminal chat client for a running milgram server. Talks to the REST
// gateway, so replies come back through the same bridge the Slack and
// Discord adapters use.

const ansiReset = "\033[0m"

func paint(code, s string) string { return "\033[" + code + "m" + s + ansiReset }
func red(s string) string         { return paint("31", s) }
func green(s string) string       { return paint("32", s) }
func cyan(s string) string        { return paint("36", s) }

type client struct {
	base string
	user string
	http *http.Client
}

func main() {
	server := flag.String("server", "http://localhost:8080", "milgram server URL")
	user := flag.String("user", "cli-visitor", "visitor name shown to agents")
	flag.Parse()

	c := &client{
		base: strings.TrimRight(*server, "/"),
		user: *user,
		// The REST gateway holds the request open while the agent
		// thinks, so the client timeout must outlast its reply wait.
		http: &http.Client{Timeout: 65 * time.Second},
	}

	fmt.Printf("milgram chat — %s as %s\n", c.base, c.user)
	fmt.Println("Mention an agent with @Name. /agents /status /history, exit to quit.")
	if err := c.listAgents(); err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
	}

	repl(c)
}

func repl(c *client) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())

		var err error
		switch line {
		case "":
			continue
		case "exit", "quit":
			fmt.Println("Bye!")
			return
		case "/agents":
			err = c.listAgents()
		case "/status":
			err = c.gatewayStatus()
		case "/history":
			err = c.recentHistory()
		default:
			err = c.say(line)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, red(err.Error()))
		}
	}
}

// getJSON fetches an API path and decodes the body into v.
func (c *client) getJSON(path string, v interface{}) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return fmt.Errorf("server unreachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s: %d %s", path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *client) listAgents() error {
	var agents []struct {
		Name         string `json:"name"`
		Attached     bool   `json:"attached"`
		Demographics struct {
			Occupation string `json:"occupation"`
		} `json:"demographics"`
	}
	if err := c.getJSON("/api/agents", &agents); err != nil {
		return err
	}
	if len(agents) == 0 {
		fmt.Println("The world is empty so far.")
		return nil
	}

	fmt.Println("Who lives here:")
	for _, a := range agents {
		note := a.Demographics.Occupation
		if !a.Attached {
			note += ", silent"
		}
		fmt.Printf("  @%s (%s)\n", a.Name, note)
	}
	return nil
}

func (c *client) gatewayStatus() error {
	var statuses []struct {
		Platform  string `json:"platform"`
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
		Details   string `json:"details,omitempty"`
	}
	if err := c.getJSON("/api/gateway/status", &statuses); err != nil {
		return err
	}

	fmt.Println("Platforms:")
	for _, s := range statuses {
		mark := red("down")
		if s.Connected {
			mark = green("up")
		}
		line := fmt.Sprintf("  %-10s %s", s.Platform, mark)
		if s.Details != "" {
			line += "  " + s.Details
		}
		if s.Error != "" {
			line += "  " + red(s.Error)
		}
		fmt.Println(line)
	}
	return nil
}

func (c *client) recentHistory() error {
	var msgs []struct {
		Sender    string    `json:"sender"`
		Receiver  string    `json:"receiver"`
		Timestamp time.Time `json:"timestamp"`
		Content   struct {
			Value json.RawMessage `json:"value"`
		} `json:"content"`
	}
	if err := c.getJSON("/api/history?limit=20", &msgs); err != nil {
		return err
	}
	if len(msgs) == 0 {
		fmt.Println("No messages yet.")
		return nil
	}

	for _, m := range msgs {
		var text string
		if json.Unmarshal(m.Content.Value, &text) != nil {
			text = string(m.Content.Value)
		}
		fmt.Printf("  %s %s -> %s: %s\n",
			m.Timestamp.Format("15:04"), m.Sender, m.Receiver, text)
	}
	return nil
}

func (c *client) say(content string) error {
	body, _ := json.Marshal(map[string]string{
		"user_id":   c.user,
		"user_name": c.user,
		"content":   content,
	})
	resp, err := c.http.Post(c.base+"/api/gateway/chat/message", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("server unreachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server said %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var reply struct {
		AgentName string `json:"agent_name"`
		Content   string `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return fmt.Errorf("unreadable reply: %v", err)
	}

	if reply.AgentName != "" {
		fmt.Printf("%s %s\n", cyan("["+reply.AgentName+"]"), reply.Content)
	} else {
		fmt.Println(reply.Content)
	}
	return nil
}
