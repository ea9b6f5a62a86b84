package botdetect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectorLoadsDatabase(t *testing.T) {
	d := NewDetector()
	require.NotEmpty(t, d.bots)
}

func TestIsBot(t *testing.T) {
	d := NewDetector()

	bots := []string{
		"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
		"Mozilla/5.0 (compatible; bingbot/2.0; +http://www.bing.com/bingbot.htm)",
		"Mozilla/5.0 (compatible; SemrushBot/7~bl; +http://www.semrush.com/bot.html)",
		"Mozilla/5.0 AppleWebKit/537.36 (compatible; GPTBot/1.2; +https://openai.com/gptbot)",
		"curl/8.5.0",
		"Wget/1.21.4",
		"python-requests/2.31.0",
		"Scrapy/2.11.0 (+https://scrapy.org)",
		"Zotero/6.0.30",
		"Mozilla/5.0 (compatible; heritrix/3.4.0)",
	}
	for _, ua := range bots {
		assert.True(t, d.IsBot(ua), "expected bot: %s", ua)
	}

	humans := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/127.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) Safari/604.1",
		// Cubot is a phone brand, not a bot.
		"Mozilla/5.0 (Linux; Android 10; CUBOT X30) Chrome/110.0.0.0 Mobile Safari/537.36",
	}
	for _, ua := range humans {
		assert.False(t, d.IsBot(ua), "expected human: %s", ua)
	}
}

func TestDetectReturnsEntry(t *testing.T) {
	d := NewDetector()

	entry := d.Detect("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
	require.NotNil(t, entry)
	assert.Equal(t, "Googlebot", entry.Name)

	assert.Nil(t, d.Detect("Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0"))
}
