package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/pflag"
)

// runStatus is the "status" subcommand: it queries a running
// neurofeedbackd instance's /api/health and /api/session/status
// endpoints and renders them as tables, giving
// operators a CLI view without a browser.
func runStatus(args []string) {
	fs := pflag.NewFlagSet("neurofeedbackd status", pflag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "neurofeedbackd HTTP address to query")
	fs.Parse(args)

	health, err := fetchJSON(*addr + "/api/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: fetching health: %v\n", err)
		os.Exit(1)
	}
	sessionStatus, err := fetchJSON(*addr + "/api/session/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: fetching session status: %v\n", err)
		os.Exit(1)
	}

	printHealthTable(health)
	printSessionTable(sessionStatus)
}

func fetchJSON(url string) (map[string]interface{}, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func printHealthTable(health map[string]interface{}) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Field", "Value"})

	devices, _ := health["connected_devices"].([]interface{})
	table.Append([]string{"connected devices", fmt.Sprintf("%d", len(devices))})
	for _, d := range devices {
		table.Append([]string{"  device", fmt.Sprintf("%v", d)})
	}
	table.Append([]string{"ws clients", fmt.Sprintf("%v", health["ws_clients"])})
	table.Append([]string{"session active", fmt.Sprintf("%v", health["session_active"])})

	if perf, ok := health["performance"].(map[string]interface{}); ok {
		table.Append([]string{"calc loop avg ms", fmt.Sprintf("%.2f", asFloat(perf["calc_loop_avg_ms"]))})
		table.Append([]string{"calc loop max ms", fmt.Sprintf("%.2f", asFloat(perf["calc_loop_max_ms"]))})
		table.Append([]string{"calc loop p95 ms", fmt.Sprintf("%.2f", asFloat(perf["calc_loop_p95_ms"]))})
	}
	table.Render()
}

func printSessionTable(status map[string]interface{}) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Field", "Value"})
	for _, key := range []string{"active", "session_id", "protocol", "phase", "elapsed_s", "remaining_s", "feedback_enabled"} {
		table.Append([]string{key, fmt.Sprintf("%v", status[key])})
	}
	table.Render()
}

func asFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}
