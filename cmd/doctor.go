package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/coder/websocket"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/convoke/internal/config"
	"github.com/nextlevelbuilder/convoke/internal/store"
	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check broker environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("convoke doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.SchemaVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND — using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Store:")
	fmt.Printf("    %-14s %s\n", "Backend:", cfg.Store.Backend)
	st, err := store.Open(cfg.Store.Backend, cfg.Store.PostgresDSN, cfg.SQLitePathExpanded())
	if err != nil {
		fmt.Printf("    %-14s CONNECT FAILED (%s)\n", "Status:", err)
	} else {
		fmt.Printf("    %-14s OK\n", "Status:")
		st.Close()
	}

	fmt.Println()
	fmt.Println("  Telemetry:")
	if cfg.Telemetry.Enabled {
		fmt.Printf("    %-14s %s (%s)\n", "Exporter:", cfg.Telemetry.Endpoint, cfg.Telemetry.Protocol)
	} else {
		fmt.Printf("    %-14s disabled\n", "Exporter:")
	}

	fmt.Println()
	fmt.Println("  Gateway transport:")
	checkGatewayTransport(cfg.Gateway.Host, cfg.Gateway.Port)

	fmt.Println()
	fmt.Println("  Bridge:")
	if cfg.Bridge.Host == "" {
		fmt.Printf("    %-14s (not configured — /bridge/* returns 503)\n", "Status:")
	} else {
		checkBridgeHealth(cfg.Bridge.Host, cfg.Bridge.Port)
	}

	fmt.Println()
	fmt.Println("  Maintenance:")
	fmt.Printf("    %-14s %s\n", "Reap cron:", cfg.Maintenance.ReapSchedule)
	fmt.Printf("    %-14s %ds\n", "Grace window:", cfg.Maintenance.GraceWindowSeconds)

	fmt.Println()
	fmt.Println("  External Tools:")
	checkBinary("curl")
	checkBinary("git")

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

// checkGatewayTransport confirms the broker's websocket upgrade endpoint
// is reachable, using github.com/coder/websocket rather than the
// gorilla/websocket the broker itself serves connections with — doctor
// is a thin client and only needs to dial out once.
func checkGatewayTransport(host string, port int) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := fmt.Sprintf("ws://%s:%d/ws", host, port)
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		fmt.Printf("    %-14s UNREACHABLE (%s)\n", "Status:", err)
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "doctor check complete")
	fmt.Printf("    %-14s OK (%s)\n", "Status:", url)
}

func checkBridgeHealth(host string, port int) {
	url := fmt.Sprintf("http://%s:%d/health", host, port)
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Printf("    %-14s UNREACHABLE (%s)\n", "Status:", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		fmt.Printf("    %-14s OK (%s)\n", "Status:", url)
	} else {
		fmt.Printf("    %-14s unhealthy (HTTP %d)\n", "Status:", resp.StatusCode)
	}
}

func checkBinary(name string) {
	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Printf("    %-14s NOT FOUND\n", name+":")
	} else {
		fmt.Printf("    %-14s %s\n", name+":", path)
	}
}
