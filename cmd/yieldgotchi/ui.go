package main

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	cl "yieldgotchi/internal/cli"
	"yieldgotchi/internal/guardian"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

var (
	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(16)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

var stageColors = map[guardian.Stage]lipgloss.Color{
	guardian.StageEgg:       lipgloss.Color("230"),
	guardian.StageBaby:      lipgloss.Color("117"),
	guardian.StageTeen:      lipgloss.Color("120"),
	guardian.StageAdult:     lipgloss.Color("214"),
	guardian.StageLegendary: lipgloss.Color("201"),
	guardian.StageDead:      lipgloss.Color("240"),
}

var rarityColors = map[guardian.Rarity]*color.Color{
	guardian.RarityCommon:    neutral,
	guardian.RarityRare:      color.New(color.FgBlue, color.Bold),
	guardian.RarityEpic:      color.New(color.FgMagenta, color.Bold),
	guardian.RarityLegendary: color.New(color.FgYellow, color.Bold),
}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptFloat(label string, min float64) (float64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := parseAmount(text)
		if err != nil {
			printWarn("Enter a valid number.")
			continue
		}
		if v <= min {
			printWarn(fmt.Sprintf("Value must be > %.2f", min))
			continue
		}
		return v, nil
	}
}

func promptConfirm(label string) (bool, error) {
	fmt.Printf("%s [y/N]: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// parseAmount accepts plain numbers as well as "$1,250.50".
func parseAmount(text string) (float64, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "$")
	text = strings.ReplaceAll(text, ",", "")
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("amount must be finite")
	}
	return v, nil
}

func renderAccount(view guardian.View, now time.Time) string {
	g, v := view.Guardian, view.Vault
	if g == nil || v == nil {
		return cardStyle.Render("No guardian yet. Run `yieldgotchi mint NAME`.")
	}

	stage := lipgloss.NewStyle().Bold(true).Foreground(stageColors[g.Stage]).Render(strings.ToUpper(string(g.Stage)))
	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(28), progress.WithoutPercentage())

	held := guardian.ElapsedDays(v.DepositedAt, now)
	if v.Principal <= 0 {
		held = 0
	}

	lines := []string{
		titleStyle.Render(g.Name) + "  " + stage,
		"",
		row("Mood", fmt.Sprintf("%s %3d/100", bar.ViewAs(float64(g.Mood)/100), g.Mood)),
		row("Principal", formatCurrency(v.Principal)),
		row("APY", fmt.Sprintf("%.2f%%", v.APY*100)),
		row("Held for", formatDuration(held)),
		row("Growth score", fmt.Sprintf("%.2f", v.GrowthScore)),
		row("Pending yield", formatCurrency(v.Vault.RealTimeYield(now))),
		row("Claimed yield", formatCurrency(v.TotalYieldClaimed)),
		row("Next unlock", fmt.Sprintf("%s %s to go", bar.ViewAs(v.UnlockProgress/100), formatCurrency(v.YieldToNextUnlock))),
	}
	if v.UnlocksOwed > 0 {
		lines = append(lines, row("Unlocks owed", success.Sprintf("%d (run `yieldgotchi claim`)", v.UnlocksOwed)))
	}

	equipped := equippedSummary(view.Inventory)
	lines = append(lines, "", titleStyle.Render("Armory"))
	if len(view.Inventory) == 0 {
		lines = append(lines, dimStyle.Render("No armor yet."))
	} else {
		for _, slot := range []guardian.Slot{guardian.SlotHead, guardian.SlotBody, guardian.SlotWeapon, guardian.SlotPet} {
			name := equipped[slot]
			if name == "" {
				name = dimStyle.Render("-")
			}
			lines = append(lines, row(string(slot), name))
		}
		lines = append(lines, dimStyle.Render(fmt.Sprintf("%d item(s) owned", len(view.Inventory))))
	}

	if len(view.Activity) > 0 {
		lines = append(lines, "", titleStyle.Render("Recent activity"))
		for i, ev := range view.Activity {
			if i == 5 {
				break
			}
			lines = append(lines, fmt.Sprintf("%s %s", dimStyle.Render(formatAgo(now.Sub(ev.Timestamp))), ev.Description))
		}
	}
	return cardStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

func equippedSummary(items []guardian.RewardItem) map[guardian.Slot]string {
	out := map[guardian.Slot]string{}
	for _, it := range items {
		if it.Equipped {
			out[it.Slot] = rarityText(it.Rarity, it.Name)
		}
	}
	return out
}

func rarityText(r guardian.Rarity, text string) string {
	c, ok := rarityColors[r]
	if !ok {
		c = neutral
	}
	return c.Sprint(text)
}

func renderInventory(items []guardian.RewardItem) {
	accent.Println("\n== ARMORY ==")
	if len(items) == 0 {
		printInfo("No armor yet. Claim yield to unlock some.")
		return
	}
	sorted := append([]guardian.RewardItem(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Slot < sorted[j].Slot })
	fmt.Printf("%-36s %-24s %-10s %-10s %-8s\n", "ID", "NAME", "RARITY", "SLOT", "EQUIPPED")
	for _, it := range sorted {
		mark := ""
		if it.Equipped {
			mark = "yes"
		}
		fmt.Printf("%-36s %-24s %-10s %-10s %-8s\n",
			it.ID,
			rarityText(it.Rarity, fmt.Sprintf("%-24s", truncate(it.Name, 24))),
			it.Rarity,
			it.Slot,
			mark,
		)
	}
	fmt.Println()
}

func renderCatalog(cat cl.CatalogResponse) {
	accent.Println("\n== REWARD CATALOG ==")
	fmt.Printf("One unlock per %s of claimed yield.\n", formatCurrency(cat.UnlockThreshold))
	weights := make([]string, 0, len(cat.RarityWeights))
	for _, r := range []guardian.Rarity{guardian.RarityCommon, guardian.RarityRare, guardian.RarityEpic, guardian.RarityLegendary} {
		if w, ok := cat.RarityWeights[r]; ok {
			weights = append(weights, fmt.Sprintf("%s %d", rarityText(r, string(r)), w))
		}
	}
	fmt.Printf("Rarity weights: %s\n\n", strings.Join(weights, "  "))

	fmt.Printf("%-24s %-10s %-10s\n", "NAME", "RARITY", "SLOT")
	for _, it := range cat.Items {
		fmt.Printf("%s %-10s %-10s\n", rarityText(it.Rarity, fmt.Sprintf("%-24s", it.Name)), it.Rarity, it.Slot)
	}

	fmt.Println()
	accent.Println("Stages (growth score = log10(principal+1) x days held)")
	for _, st := range cat.Stages {
		upper := "+"
		if st.Max != nil {
			upper = fmt.Sprintf("-%g", *st.Max)
		}
		fmt.Printf("  %-10s %g%s\n", st.Stage, st.Min, upper)
	}
	fmt.Println()
}

// renderOutcome prints what an operation did, then the refreshed account.
func renderOutcome(out cl.Outcome, msg string) {
	res := out.Result
	printSuccess(msg)
	for i := len(res.Events) - 1; i >= 0; i-- {
		ev := res.Events[i]
		switch ev.Type {
		case guardian.EventLevelUp:
			success.Println("  ↑ " + ev.Description)
		case guardian.EventLevelDown:
			warn.Println("  ↓ " + ev.Description)
		case guardian.EventDeath:
			danger.Println("  ✝ " + ev.Description)
		case guardian.EventArmorUnlock:
			accent.Println("  ★ " + ev.Description)
		}
	}
	if res.Revived {
		success.Println("  Your guardian hatched again from a fresh egg.")
	}
	switch res.Claim {
	case guardian.ClaimNothing:
		if res.Op == "claim" {
			printInfo("  Nothing to claim yet. Keep your principal in the vault.")
		}
	case guardian.ClaimExhausted:
		printWarn("  You own every item in the catalog. Yield stays pending.")
	}
	if out.Account != nil {
		fmt.Println(renderAccount(*out.Account, out.Account.AsOf))
	}
}

func formatCurrency(amount float64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	cents := int64(math.Round(amount * 100))
	return fmt.Sprintf("%s$%s.%02d", sign, comma(cents/100), cents%100)
}

// formatDuration renders a span of days the way the dashboard shows it.
func formatDuration(days float64) string {
	switch {
	case days < 1:
		hours := int(math.Floor(days * 24))
		if hours < 1 {
			return fmt.Sprintf("%dm", int(math.Floor(days*24*60)))
		}
		return fmt.Sprintf("%dh", hours)
	case days < 30:
		return fmt.Sprintf("%dd", int(math.Floor(days)))
	case days < 365:
		return fmt.Sprintf("%dmo", int(math.Floor(days/30)))
	default:
		return fmt.Sprintf("%.1fy", days/365)
	}
}

func formatAgo(d time.Duration) string {
	if d < time.Minute {
		return "now"
	}
	return formatDuration(d.Hours()/24) + " ago"
}

func comma(v int64) string {
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		if len(s) > pre {
			b.WriteByte(',')
		}
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
