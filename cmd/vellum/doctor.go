package main

import (
	"fmt"
	"runtime"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/vellum-wm/vellum/internal/ax"
	"github.com/vellum-wm/vellum/internal/config"
	"github.com/vellum-wm/vellum/internal/session"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func printCheck(styled bool, status, label, detail string) {
	mark := status
	if styled {
		switch status {
		case "ok":
			mark = okStyle.Render("ok  ")
		case "fail":
			mark = failStyle.Render("fail")
		default:
			mark = warnStyle.Render("warn")
		}
	} else {
		mark = fmt.Sprintf("%-4s", status)
	}
	fmt.Printf("%s %s", mark, label)
	if detail != "" {
		fmt.Printf(" — %s", detail)
	}
	fmt.Println()
}

func runDoctor() error {
	styled := styledOutput()

	if runtime.GOOS == "darwin" {
		if ax.Trusted() {
			printCheck(styled, "ok", "Accessibility permission", "")
		} else {
			printCheck(styled, "fail", "Accessibility permission",
				"grant it under System Settings > Privacy & Security > Accessibility")
		}
	} else {
		printCheck(styled, "warn", "platform", runtime.GOOS+" (the daemon only manages windows on macOS)")
	}

	cfgPath, err := config.Path()
	if err != nil {
		printCheck(styled, "fail", "config path", err.Error())
	} else if cfg, err := config.LoadFrom(cfgPath); err != nil {
		printCheck(styled, "fail", "config "+cfgPath, err.Error())
	} else {
		printCheck(styled, "ok", "config "+cfgPath,
			fmt.Sprintf("%d workspaces, %d app rules, %d title rules",
				len(cfg.Workspaces.Names), len(cfg.Rules.Apps), len(cfg.Rules.Titles)))
	}

	env, err := config.LoadEnv()
	if err != nil {
		printCheck(styled, "fail", "environment", err.Error())
		return nil
	}
	socketPath, err := env.SocketPath()
	if err != nil {
		printCheck(styled, "fail", "socket path", err.Error())
		return nil
	}

	c, err := session.Dial(socketPath, version)
	if err != nil {
		printCheck(styled, "warn", "daemon", "not running ("+socketPath+")")
		return nil
	}
	defer c.Close()
	printCheck(styled, "ok", "daemon",
		fmt.Sprintf("version %s, pid %d, socket %s", c.DaemonVersion, c.DaemonPID, socketPath))

	if detail, err := daemonProcessDetail(int32(c.DaemonPID)); err == nil {
		printCheck(styled, "ok", "daemon process", detail)
	}

	report, err := c.State()
	if err != nil {
		printCheck(styled, "fail", "daemon state", err.Error())
		return nil
	}
	total := 0
	for _, ws := range report.Workspaces {
		total += len(ws.Windows)
	}
	printCheck(styled, "ok", "state",
		fmt.Sprintf("current %q, %d workspaces, %d managed windows", report.Current, len(report.Workspaces), total))
	return nil
}

// daemonProcessDetail resolves the daemon pid into a short process summary.
func daemonProcessDetail(pid int32) (string, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return "", err
	}
	name, err := p.Name()
	if err != nil {
		return "", err
	}
	detail := name
	if created, err := p.CreateTime(); err == nil {
		detail += fmt.Sprintf(", started %s", msToClock(created))
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		detail += fmt.Sprintf(", rss %.1f MB", float64(mem.RSS)/(1<<20))
	}
	return detail, nil
}

func msToClock(ms int64) string {
	return time.UnixMilli(ms).Format("15:04:05")
}
