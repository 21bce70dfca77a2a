package bot

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hrygo/estatebot/plugin/ai/valuation"
	"github.com/hrygo/estatebot/server/finops"
	boterrors "github.com/hrygo/estatebot/server/internal/errors"
	"github.com/hrygo/estatebot/server/telegram"
	"github.com/hrygo/estatebot/store/cache"
)

// Formatter renders replies as Markdown, which the client converts to
// Telegram entities.
type Formatter struct {
	maxLength int
}

// NewFormatter returns a formatter bounded by the Telegram message limit.
func NewFormatter() *Formatter {
	return &Formatter{maxLength: telegram.MaxMessageLength}
}

// Valuation renders a single property or comparison report.
func (f *Formatter) Valuation(v *valuation.Valuation) string {
	report := fmt.Sprintf(`🏠 **Property Valuation Report** %s

📍 **Property Details**
%s

💰 **Final Estimate**
%s

📊 **Price Range**
%s

🏘️ **Comparable Sales**
%s

📈 **Market Analysis**
%s

🔍 **Confidence Level**
%s

%s`,
		ConfidenceEmoji(v.Confidence),
		propertyDetails(v.PropertyDetails),
		finalEstimate(v.FinalEstimate),
		priceRange(v.PriceRange),
		comparableSales(v.ComparableSales),
		marketAnalysis(v.NeighborhoodAnalysis),
		ConfidenceLevel(v.Confidence),
		footer(v),
	)
	return f.fit(report, v)
}

// Multiple renders a combined valuation of properties sold together.
func (f *Formatter) Multiple(v *valuation.Valuation) string {
	report := fmt.Sprintf(`🏘️ **Combined Property Valuation** %s

📍 **Properties Analyzed**
%s

💰 **Combined Estimate**
%s

📊 **Price Range**
%s

🔗 **Land Assembly Premium**
%s

🏘️ **Market Context**
%s

🔍 **Confidence Level**
%s

%s`,
		ConfidenceEmoji(v.Confidence),
		propertyDetails(v.PropertyDetails),
		finalEstimate(v.FinalEstimate),
		priceRange(v.PriceRange),
		landAssembly(v.MarketAdjustments),
		marketAnalysis(v.NeighborhoodAnalysis),
		ConfidenceLevel(v.Confidence),
		footer(v),
	)
	return f.fit(report, v)
}

// fit falls back to a summary when report exceeds one message.
func (f *Formatter) fit(report string, v *valuation.Valuation) string {
	if utf8.RuneCountInString(report) <= f.maxLength {
		return report
	}
	return fmt.Sprintf(`🏠 **Property Valuation Summary** %s

💰 %s

📊 **Range:** %s

🔍 **Confidence:** %s

💡 The full report was too long to send.`,
		ConfidenceEmoji(v.Confidence),
		finalEstimate(v.FinalEstimate),
		priceRange(v.PriceRange),
		ConfidenceLevel(v.Confidence),
	)
}

func footer(v *valuation.Valuation) string {
	if v.Cached {
		return "⚡ **Analysis Complete** _(cached result)_"
	}
	return "⚡ **Analysis Complete**"
}

// QuickEstimate renders the /estimate reply.
func (f *Formatter) QuickEstimate(q valuation.QuickEstimate) string {
	return fmt.Sprintf(`🏠 **Quick Estimate** %s

📍 **Address**
%s

💰 **Estimated Value**
%s

🔍 **Confidence**
%d%%

💡 Send the address as a message for the full analysis.`,
		ConfidenceEmoji(q.Confidence), q.Address, q.Estimate, percent(q.Confidence))
}

// Processing tells the user a valuation has started.
func (f *Formatter) Processing(addresses []string) string {
	if len(addresses) == 1 {
		return fmt.Sprintf("🔍 Analyzing property at:\n📍 %s\n\n⏳ This may take 30-60 seconds...", addresses[0])
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🔍 Analyzing %d properties:\n", len(addresses))
	for i, addr := range addresses {
		fmt.Fprintf(&b, "📍 %d. %s\n", i+1, addr)
	}
	b.WriteString("\n⏳ This may take 60-90 seconds...")
	return b.String()
}

// Welcome is the /start reply.
func (f *Formatter) Welcome() string {
	return `🏠 **Welcome to Real Estate Valuation Bot!**

I can help you estimate property values using AI analysis and live web research.

**How to use:**
Just send me an address like:
• "What's 123 Main Street, City worth?"
• "Estimate 456 Oak Avenue, Suburb, STATE 1234"

**Features:**
✅ Individual property valuations
✅ Adjacent property combinations
✅ Neighborhood analysis
✅ Confidence scoring

Type /help for more information!`
}

// Help is the /help reply.
func (f *Formatter) Help() string {
	return `🏠 **Real Estate Valuation Bot**

**Available Commands:**
/start - Welcome message
/help - Show this help
/estimate <address> - Quick property estimate
/stats - Bot statistics
/health - Check bot health
/cache - Cache information
/clearcache - Clear all cached data
/invalidate <address> - Forget cached valuations for an address

**How to Use:**
Just send me an address like:
• "What's 123 Main St, City, State worth?"
• "Estimate 456 Oak Ave"
• "Value of 789 Pine St, Suburb, STATE 1234"

**Multiple Properties:**
• "Value of 123 Main St and 125 Main St together"
• "Compare 456 Oak Ave vs 458 Oak Ave"

**Features:**
✅ Individual property valuations
✅ Adjacent property combinations
✅ Land assembly premiums
✅ Neighborhood analysis
✅ Confidence scoring

💡 **Tip:** Include full addresses with suburb/city and postal code for best results.`
}

// StatsView carries the values shown by /stats.
type StatsView struct {
	Uptime            time.Duration
	RequestsProcessed int64
	RequestsFailed    int64
	Commands          map[string]int64
	Healthy           bool
	Cache             *cache.Info
	Usage             *finops.CostReport
	Now               time.Time
}

// Stats renders the /stats reply.
func (f *Formatter) Stats(s StatsView) string {
	status := "❌ Unhealthy"
	if s.Healthy {
		status = "✅ Healthy"
	}

	var b strings.Builder
	fmt.Fprintf(&b, `📊 **Bot Statistics**

⏰ **Uptime:** %s
📈 **Requests Processed:** %d
⚠️ **Requests Failed:** %d
🔧 **Agent Status:** %s`, s.Uptime.Truncate(time.Second), s.RequestsProcessed, s.RequestsFailed, status)

	if len(s.Commands) > 0 {
		names := slices.Sorted(maps.Keys(s.Commands))
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s %d", name, s.Commands[name]))
		}
		fmt.Fprintf(&b, "\n⌨️ **Commands:** %s", strings.Join(parts, ", "))
	}

	b.WriteString("\n\n💾 **Cache Performance:**")

	if s.Cache == nil {
		b.WriteString("\n• Cache: Disabled")
	} else {
		st := s.Cache.Stats
		fmt.Fprintf(&b, "\n• Hit Rate: %.1f%%", st.HitRate)
		fmt.Fprintf(&b, "\n• Total Requests: %d", st.TotalRequests)
		fmt.Fprintf(&b, "\n• Memory Cache: %d/%d", s.Cache.Memory.Size, s.Cache.Memory.MaxSize)
		if s.Cache.Disk.Enabled {
			fmt.Fprintf(&b, "\n• Disk Cache: %d files (%.2f MB)", s.Cache.Disk.Size, s.Cache.Disk.SizeMB())
		} else {
			b.WriteString("\n• Disk Cache: Disabled")
		}
	}

	if s.Usage != nil {
		fmt.Fprintf(&b, "\n\n🧠 **LLM Usage:** %d calls, %d tokens (~$%.4f)",
			s.Usage.Calls, s.Usage.TotalTokens, s.Usage.TotalCost)
	}

	fmt.Fprintf(&b, "\n\n🕒 **Last Updated:** %s", s.Now.Format(time.DateTime))
	return b.String()
}

// CacheInfo renders the /cache reply. A nil info means caching is off.
func (f *Formatter) CacheInfo(info *cache.Info) string {
	if info == nil {
		return "💾 Cache is currently disabled."
	}
	st := info.Stats

	var b strings.Builder
	fmt.Fprintf(&b, `💾 **Cache Information**

📊 **Performance:**
• Hit Rate: %.1f%%
• Total Requests: %d
• Cache Hits: %d
• Cache Misses: %d

🧠 **Memory Cache:**
• Entries: %d/%d
• TTL: %g hours

💿 **Disk Cache:**`,
		st.HitRate, st.TotalRequests, st.Hits, st.Misses,
		info.Memory.Size, info.Memory.MaxSize, info.Memory.TTL.Hours())

	if info.Disk.Enabled {
		fmt.Fprintf(&b, "\n• Files: %d\n• Size: %.2f MB\n• TTL: %g days",
			info.Disk.Size, info.Disk.SizeMB(), info.Disk.TTL.Hours()/24)
	} else {
		b.WriteString("\n• Disabled")
	}

	fmt.Fprintf(&b, "\n\n⏱️ **Uptime:** %s", st.Uptime.Truncate(time.Second))
	return b.String()
}

// CacheCleared renders the /clearcache reply.
func (f *Formatter) CacheCleared(res cache.ClearResult) string {
	return fmt.Sprintf(`🗑️ **Cache Cleared**

Removed:
• Memory entries: %d
• Disk entries: %d

Cache has been completely cleared.`, res.Memory, res.Disk)
}

// Invalidated renders the /invalidate reply.
func (f *Formatter) Invalidated(address string, n int) string {
	return fmt.Sprintf("🗑️ Invalidated %d cached valuation(s) for %s.", n, address)
}

// Error renders the reply for a failed request.
func (f *Formatter) Error(err error) string {
	switch boterrors.CodeOf(err, boterrors.ErrCodeValuationFailed) {
	case boterrors.ErrCodeUnauthorized:
		return "❌ Sorry, you're not authorized to use this bot."
	case boterrors.ErrCodeRateLimited:
		return "⏳ You're sending requests too quickly. Please wait a minute and try again."
	case boterrors.ErrCodeAddressNotFound:
		return `❌ I couldn't find any valid addresses in your message.

Please include a full address like:
• 123 Main Street, City, STATE 1234
• 456 Oak Avenue, Suburb

Type /help for more examples.`
	case boterrors.ErrCodeInvalidAddress:
		return `❌ The addresses you provided don't appear to be valid.

Please check the format and try again.
Type /help for examples.`
	case boterrors.ErrCodeCacheDisabled:
		return "💾 Cache is currently disabled."
	case boterrors.ErrCodeTimeout:
		return "⏱️ The analysis took too long and was stopped. Please try again in a few moments."
	case boterrors.ErrCodeLLMUnavailable:
		return "❌ The AI service is currently unavailable. Please try again later."
	}

	return fmt.Sprintf(`❌ **Analysis Error**

Sorry, I encountered an issue processing your request.

**Error:** %s...

Please try:
• Checking the address format
• Using a more specific address
• Trying again in a few moments

Type /help for usage examples.`, truncateRunes(errorDetail(err), 100))
}

// errorDetail prefers the underlying cause over the coded wrapper.
func errorDetail(err error) string {
	var be *boterrors.BotError
	if errors.As(err, &be) && be.Cause != nil {
		return be.Cause.Error()
	}
	return err.Error()
}

// ConfidenceLevel renders confidence as a percentage with a band.
func ConfidenceLevel(confidence float64) string {
	p := percent(confidence)
	switch {
	case p >= 80:
		return fmt.Sprintf("🟢 %d%% (High)", p)
	case p >= 60:
		return fmt.Sprintf("🟡 %d%% (Medium)", p)
	default:
		return fmt.Sprintf("🔴 %d%% (Low)", p)
	}
}

// ConfidenceEmoji summarizes confidence in one symbol.
func ConfidenceEmoji(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return "🎯"
	case confidence >= 0.6:
		return "📊"
	default:
		return "❓"
	}
}

func percent(confidence float64) int {
	return int(confidence * 100)
}

func propertyDetails(details string) string {
	var out []string
	for _, line := range strings.Split(details, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if line == "" {
			continue
		}
		out = append(out, "• "+line)
		if len(out) == 5 {
			break
		}
	}
	if len(out) == 0 {
		return "• Not available"
	}
	return strings.Join(out, "\n")
}

func finalEstimate(estimate string) string {
	lines := strings.Split(estimate, "\n")
	var line string
	for _, l := range lines {
		lower := strings.ToLower(l)
		if strings.Contains(l, "$") && (strings.Contains(lower, "estimate") || strings.Contains(lower, "final")) {
			line = strings.TrimSpace(l)
			break
		}
	}
	if line == "" {
		line = strings.TrimSpace(lines[0])
	}
	if line == "" {
		return "**Estimate not available**"
	}
	return "**" + line + "**"
}

func priceRange(r string) string {
	r = strings.TrimSpace(r)
	if r == "" {
		return "Not available"
	}
	return "`" + strings.ReplaceAll(r, "`", "'") + "`"
}

func comparableSales(comps string) string {
	lines := strings.Split(strings.TrimSpace(comps), "\n")
	var out []string
	for _, l := range lines[:min(3, len(lines))] {
		if l = strings.TrimSpace(l); l != "" && strings.Contains(l, "$") {
			out = append(out, "• "+l)
		}
	}
	if len(lines) > 3 {
		out = append(out, "• _(... and more)_")
	}
	if len(out) == 0 {
		return "No recent comparables found"
	}
	return strings.Join(out, "\n")
}

func marketAnalysis(neighborhood string) string {
	var out []string
	for _, l := range strings.Split(neighborhood, "\n") {
		l = strings.TrimSpace(l)
		lower := strings.ToLower(l)
		if l != "" && (strings.Contains(lower, "school") || strings.Contains(lower, "crime") || strings.Contains(lower, "median")) {
			out = append(out, "• "+l)
			if len(out) == 3 {
				break
			}
		}
	}
	if len(out) == 0 {
		return "• No key indicators found"
	}
	return strings.Join(out, "\n")
}

func landAssembly(adjustments string) string {
	for _, l := range strings.Split(adjustments, "\n") {
		lower := strings.ToLower(l)
		if strings.Contains(lower, "assembly") || strings.Contains(lower, "premium") {
			return "• " + strings.TrimSpace(l)
		}
	}
	return "• Standard market conditions applied"
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
