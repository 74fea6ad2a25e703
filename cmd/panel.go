// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/thermonode/pkg/hal"
	"github.com/Thermoquad/thermonode/pkg/node"
	"github.com/Thermoquad/thermonode/pkg/serp"
)

// errSimulatedSensor is injected into the simulated ADC from the panel
var errSimulatedSensor = errors.New("simulated sensor fault")

// Messages
type panelDisplayMsg [hal.DisplayRows]string
type panelIndicatorMsg bool
type panelTickMsg time.Time
type panelDoneMsg struct{}

// panelModel shows the node's display and indicator and drives its button
type panelModel struct {
	rig      *nodeRig
	connInfo string

	lines    [hal.DisplayRows]string
	led      bool
	stats    node.Stats
	link     serp.StatsSnapshot
	adcInput textinput.Model
	faulted  bool
	status   string
	width    int
	quitting bool
}

func initialPanelModel(rig *nodeRig, connInfo string) panelModel {
	ti := textinput.New()
	ti.Placeholder = "294"
	ti.CharLimit = 4
	ti.Width = 6

	return panelModel{
		rig:      rig,
		connInfo: connInfo,
		lines:    rig.display.Lines(),
		adcInput: ti,
		width:    80,
	}
}

func runPanel(ctx context.Context, rig *nodeRig, connInfo string, prog *atomic.Pointer[tea.Program]) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(initialPanelModel(rig, connInfo), tea.WithAltScreen(), tea.WithContext(ctx))
	prog.Store(p)
	defer prog.Store(nil)

	runDone := make(chan error, 1)
	go func() {
		runDone <- rig.run(ctx)
		p.Send(panelDoneMsg{})
	}()

	_, err := p.Run()
	cancel()
	runErr := <-runDone

	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}
	return runErr
}

func (m panelModel) Init() tea.Cmd {
	return panelTickCmd()
}

func panelTickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return panelTickMsg(t)
	})
}

func (m panelModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.adcInput.Focused() {
			return m.updateInput(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "b", " ":
			if m.rig.soft == nil {
				m.status = "Button is a GPIO line"
				return m, nil
			}
			m.rig.soft.Press()
			m.status = "Button pressed"
		case "e":
			sim, ok := m.rig.adc.(*hal.SimADC)
			if !ok {
				m.status = "ADC is not simulated"
				return m, nil
			}
			m.faulted = !m.faulted
			if m.faulted {
				sim.SetError(errSimulatedSensor)
				m.status = "Sensor fault injected"
			} else {
				sim.SetError(nil)
				m.status = "Sensor fault cleared"
			}
		case "tab":
			m.adcInput.Focus()
			return m, textinput.Blink
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case panelDisplayMsg:
		m.lines = msg

	case panelIndicatorMsg:
		m.led = bool(msg)

	case panelTickMsg:
		m.stats = m.rig.ctrl.Stats()
		m.link = m.rig.engine.Statistics().Snapshot()
		return m, panelTickCmd()

	case panelDoneMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m panelModel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "tab":
		m.adcInput.Blur()
		return m, nil
	case "enter":
		m.adcInput.Blur()
		raw, err := strconv.ParseUint(strings.TrimSpace(m.adcInput.Value()), 10, 16)
		if err != nil || raw > hal.ADCMax {
			m.status = fmt.Sprintf("ADC count must be 0-%d", hal.ADCMax)
			return m, nil
		}
		sim, ok := m.rig.adc.(*hal.SimADC)
		if !ok {
			m.status = "ADC is not simulated"
			return m, nil
		}
		sim.Set(uint16(raw))
		m.status = fmt.Sprintf("ADC set to %d (%d C)", raw, hal.ConvertMCP9700(uint16(raw)))
		m.adcInput.SetValue("")
		return m, nil
	}

	var cmd tea.Cmd
	m.adcInput, cmd = m.adcInput.Update(msg)
	return m, cmd
}

func (m panelModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	lcdStyle := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("148")).
		Width(hal.DisplayColumns)
	if !m.rig.display.Backlight() {
		lcdStyle = lcdStyle.Background(lipgloss.Color("238"))
	}

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("THERMONODE"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Press 'q' to quit", m.connInfo)))
	s.WriteString("\n\n")

	s.WriteString(lcdStyle.Render(m.lines[0] + "\n" + m.lines[1]))
	s.WriteString("   ")
	led := headerStyle.Render("○ LED")
	if m.led {
		led = valueStyle.Render("● LED")
	}
	s.WriteString(led)
	s.WriteString("\n\n")

	var stats strings.Builder
	stats.WriteString(fmt.Sprintf("%s %s   %s %d   %s %d\n",
		labelStyle.Render("State:"), valueStyle.Render(m.stats.State.String()),
		labelStyle.Render("Events:"), m.stats.Drained,
		labelStyle.Render("Coalesced:"), m.stats.Overwritten,
	))
	sensorErrors := fmt.Sprintf("%d", m.stats.SensorFails)
	if m.stats.SensorFails > 0 {
		sensorErrors = errorStyle.Render(sensorErrors)
	}
	stats.WriteString(fmt.Sprintf("%s %d   %s %s\n",
		labelStyle.Render("Readings:"), m.stats.Readings,
		labelStyle.Render("Sensor errors:"), sensorErrors,
	))
	stats.WriteString(fmt.Sprintf("%s %d   %s %d   %s %d   %s %d",
		labelStyle.Render("Sent:"), m.link.Sent,
		labelStyle.Render("Send errors:"), m.link.SendErrors,
		labelStyle.Render("Received:"), m.link.Delivered,
		labelStyle.Render("Dropped:"), m.link.Dropped(),
	))
	s.WriteString(boxStyle.Render(stats.String()))
	s.WriteString("\n\n")

	s.WriteString(labelStyle.Render("ADC count: "))
	s.WriteString(m.adcInput.View())
	s.WriteString("\n")
	if m.status != "" {
		s.WriteString(headerStyle.Render(m.status))
		s.WriteString("\n")
	}
	s.WriteString("\n")
	s.WriteString(headerStyle.Render("b/space: button   e: sensor fault   tab: set ADC   q: quit"))
	s.WriteString("\n")

	return s.String()
}
