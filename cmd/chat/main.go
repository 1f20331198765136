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

// Terminal client for the builder API: talk to the builder, answer its
// questions, then switch into chatting with the built agent.
func main() {
	server := flag.String("server", "http://localhost:8080", "Agent Smith server URL")
	threadID := flag.String("thread", "", "Existing thread ID to resume (default: create a new one)")
	flag.Parse()

	c := &client{
		server: *server,
		http:   &http.Client{Timeout: 120 * time.Second},
	}

	fmt.Println("Agent Smith CLI")
	fmt.Printf("Server: %s\n", *server)
	fmt.Println("Describe the agent you want to build. Type 'exit' or 'quit' to leave.")
	fmt.Println("Commands: /agent, /builder, /config, /restart")
	fmt.Println("---")

	if *threadID != "" {
		c.threadID = *threadID
	} else if err := c.createThread(); err != nil {
		printError("Failed to create thread: %v", err)
		os.Exit(1)
	}
	fmt.Printf("Thread: %s\n", c.threadID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		prompt := "\n\033[33mbuilder\033[0m> "
		if c.agentMode {
			prompt = "\n\033[36magent\033[0m> "
		}
		fmt.Print(prompt)
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Bye!")
			return
		}

		switch input {
		case "/agent":
			c.enterAgentMode()
			continue
		case "/builder":
			c.agentMode = false
			fmt.Println("Back to the builder.")
			continue
		case "/config":
			c.showConfig()
			continue
		case "/restart":
			c.restart()
			continue
		}

		if c.agentMode {
			c.chatWithAgent(input)
		} else {
			c.talkToBuilder(input)
		}
	}
}

type client struct {
	server    string
	http      *http.Client
	threadID  string
	agentMode bool
}

type turnResult struct {
	Reply     string `json:"reply"`
	Interrupt *struct {
		ConfirmMessage string `json:"confirm_message"`
	} `json:"interrupt,omitempty"`
}

func (c *client) createThread() error {
	var out struct {
		ThreadID string `json:"thread_id"`
	}
	if err := c.post("/api/threads", nil, &out); err != nil {
		return err
	}
	c.threadID = out.ThreadID
	return nil
}

func (c *client) talkToBuilder(input string) {
	var res turnResult
	err := c.post("/api/threads/"+c.threadID+"/messages", map[string]string{"message": input}, &res)
	if err != nil {
		printError("%v", err)
		return
	}
	c.printTurn(&res)
}

// printTurn shows the builder's reply, looping through resume rounds while
// the builder keeps asking for more input.
func (c *client) printTurn(res *turnResult) {
	scanner := bufio.NewScanner(os.Stdin)
	for res.Interrupt != nil {
		fmt.Printf("\033[33m[builder asks]\033[0m %s\n", res.Interrupt.ConfirmMessage)
		fmt.Print("answer> ")
		if !scanner.Scan() {
			return
		}
		answer := strings.TrimSpace(scanner.Text())
		if answer == "" {
			continue
		}
		next := &turnResult{}
		if err := c.post("/api/threads/"+c.threadID+"/resume", map[string]string{"answer": answer}, next); err != nil {
			printError("%v", err)
			return
		}
		res = next
	}
	if res.Reply != "" {
		fmt.Println(res.Reply)
	}
}

func (c *client) enterAgentMode() {
	var status struct {
		Built bool   `json:"built"`
		Name  string `json:"name"`
	}
	if err := c.get("/api/threads/"+c.threadID+"/agent", &status); err != nil {
		printError("%v", err)
		return
	}
	if !status.Built {
		fmt.Println("No agent built yet. Finish the configuration with the builder first.")
		return
	}
	c.agentMode = true
	fmt.Printf("Chatting with \033[36m%s\033[0m. Type /builder to go back.\n", status.Name)
}

func (c *client) showConfig() {
	var out struct {
		State  string          `json:"state"`
		Config json.RawMessage `json:"config,omitempty"`
	}
	if err := c.get("/api/threads/"+c.threadID+"/config", &out); err != nil {
		printError("%v", err)
		return
	}
	fmt.Printf("Config state: %s\n", out.State)
	if len(out.Config) > 0 {
		var pretty bytes.Buffer
		if json.Indent(&pretty, out.Config, "", "  ") == nil {
			fmt.Println(pretty.String())
		}
	}
}

func (c *client) restart() {
	var out struct {
		ThreadID string `json:"thread_id"`
	}
	if err := c.post("/api/threads/"+c.threadID+"/restart", nil, &out); err != nil {
		printError("%v", err)
		return
	}
	c.threadID = out.ThreadID
	c.agentMode = false
	fmt.Printf("Started over on thread %s\n", c.threadID)
}

func (c *client) chatWithAgent(input string) {
	var out struct {
		Reply string `json:"reply"`
	}
	err := c.post("/api/threads/"+c.threadID+"/agent/chat",
		map[string]string{"session_id": "cli", "message": input}, &out)
	if err != nil {
		printError("%v", err)
		return
	}
	fmt.Println(out.Reply)
}

func (c *client) post(path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	resp, err := c.http.Post(c.server+path, "application/json", &buf)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decode(resp, out)
}

func (c *client) get(path string, out any) error {
	resp, err := c.http.Get(c.server + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decode(resp, out)
}

func decode(resp *http.Response, out any) error {
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
