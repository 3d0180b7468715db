package engine

import (
	"strings"
	"testing"

	"github.com/CompassSecurity/jsleek/pkg/scanner/rules"
	"github.com/CompassSecurity/jsleek/pkg/scanner/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixtures are assembled at runtime so the test sources themselves do not trip scanners
var (
	awsExampleKey = "AKIA" + "IOSFODNN7EXAMPLE"
	awsRandomKey  = "AKIA" + "Z7Q4MJ2KX9WPLR3T"
	awsLowEntropy = "AKIA" + "ABCDABCDABCDABCD"
	githubToken   = "ghp_" + "R4nd0mT0k3nV4lu3F0rT3st1ngPurp0s3s12"
	stripeKey     = "sk_" + "live_4eC39HqLyjWDarjtT1zdp7dc"
	gitlabToken   = "glpat-" + "xK9mQ2vL7pR4tN8wZ3cY"
	privateKey    = "-----BEGIN RSA " + "PRIVATE KEY-----"
)

func newSecretScanner() *SecretScanner {
	return NewSecretScanner(rules.Default(), DefaultOptions())
}

func byType(findings []types.SecretFinding, typ string) []types.SecretFinding {
	var out []types.SecretFinding
	for _, f := range findings {
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

func TestScanAWSExampleKey(t *testing.T) {
	content := `const key = "` + awsExampleKey + `";`

	findings := newSecretScanner().Scan(content, "https://example.com/app.js")

	require.Equal(t, []types.SecretFinding{{
		Type:       "AWS Access Key",
		Match:      awsExampleKey,
		Confidence: 70,
		File:       "https://example.com/app.js",
	}}, findings)
}

// baseFixtures holds one context-free sample per built-in secret rule.
var baseFixtures = []struct {
	typ     string
	content string
}{
	{"AWS Access Key", "x " + awsRandomKey + " y"},
	{"AWS Secret Key", "aws_secret_access_key = " + "wJalrXUtnFEMI/K7MDENG/bPxRfiCYzQ9w3Lk2Hq"},
	{"Google API Key", "AIza" + "SyD8k3Lq9Zp2Wv7Xr4Tn6Bm1Cj5Hf0Gs8Qe"},
	{"Google OAuth Client Secret", "GOCSPX-" + "Kq7Lm2Zp9Xr4Tv8Wn3Bc6Dj1Hf5G"},
	{"GitHub Token", githubToken},
	{"GitHub Fine-Grained Token", "github_pat_" + "11AB7KQ2L0" + "Zp9Xr4Tv8Wn3Bc6Dj1Hf5Gs2Qe7Ly3Mk8Np4Rt9Vw1Xz6Cb5Df0Gh2Jk7Lm3Nq8Pr4St9Uv1Wx6Yz5Ab0Cd2Ef"},
	{"GitLab Personal Access Token", gitlabToken},
	{"Slack Token", "xoxb-" + "2048736519-8472910365-Qw7Rt2Yp9Lk3Mn5Bv8Cx"},
	{"Slack Webhook", "https://hooks.slack.com/services/T" + "04BQ9KZ7M/B07QW3RTY5/h7Kp2Lm9Qr4Tv8Wx3Zb6Nc1D"},
	{"Stripe Secret Key", "(" + stripeKey + ")"},
	{"Stripe Publishable Key", "pk_" + "live_7Hq2Lm9Zp4Xr8Tv3Wn6Bc1Dj"},
	{"Twilio API Key", "SK" + "3f9a1c7e5b2d8f4a6c0e9b1d7f3a5c8e"},
	{"SendGrid API Key", "SG." + "Kq7Lm2Zp9Xr4Tv8Wn3Bc6D" + "." + "j1Hf5Gs2Qe7Ly3Mk8Np4Rt9Vw1Xz6Cb5Df0Gh2Jk7Lm"},
	{"Mailgun API Key", "key-" + "7c2e9a4f1b8d3e6a0c5f2b9d4e7a1c3f"},
	{"Shopify Access Token", "shpat_" + "9b4e1c7a3f8d2e5b0a6c9f1d4e7b2a8c"},
	{"Square Access Token", "sq0atp-" + "Hq2Lm9Zp4Xr8Tv3Wn6Bc1D"},
	{"NPM Token", "npm_" + "Kq7Lm2Zp9Xr4Tv8Wn3Bc6Dj1Hf5Gs2Qe7Ly3"},
	{"OpenAI API Key", "sk-proj-" + "Kq7Lm2Zp9Xr4Tv8Wn3Bc6" + "T3BlbkFJ" + "Dj1Hf5Gs2Qe7Ly3Mk8Np4"},
	{"Anthropic API Key", "sk-ant-api03-" + "Kq7Lm2Zp9Xr4Tv8Wn3Bc6Dj1Hf5Gs2Qe7Ly3Mk8Np4Rt9Vw1Xz6Cb5Df0Gh2Jk7Lm3Nq8Pr4St9Uv1Wx6Yz5Ab0Cd"},
	{"JWT", "eyJhbGciOiJIUzI1NiJ9" + "." + "eyJzdWIiOiIxMjM0NTY3ODkwIn0" + "." + "dozjgNryP4J3jVmNHl0w5N_XgL0n3I9PlFUP0THsR8U"},
	{"Private Key", privateKey + "\nMIIE..."},
	{"Heroku API Key", "heroku_api_key: " + "3b1d5f7a-9c2e-4a6b-8d0f-1e3a5c7b9d2f"},
	{"Database Connection String", "postgres://" + "appuser:Zq7mP2vK9xR4@db.internal:5432/shop"},
	{"Basic Auth URL", "https://" + "deploy:Hn4tQ8wZ2pLx@git.internal.net"},
	{"Bearer Token", `h.Authorization = "Bearer ` + `Xy7Kq2Lm9Pz4Rt8Vw3Nb6Cd1";`},
	{"Generic API Key", `apiKey: "` + `Vb3Nq8Lr2Xt7Kz9Pm4Wc"`},
	{"Generic Password", `password: "` + `Tr0ub4dor&3xK"`},
}

func TestScanBaseConfidenceWithoutContext(t *testing.T) {
	catalog := rules.Default()
	covered := map[string]bool{}

	for _, rule := range catalog.SecretRules() {
		for _, tt := range baseFixtures {
			if tt.typ != rule.Type {
				continue
			}
			covered[rule.Type] = true
			t.Run(tt.typ, func(t *testing.T) {
				findings := byType(newSecretScanner().Scan(tt.content, "f.js"), tt.typ)
				require.Len(t, findings, 1)
				assert.Equal(t, rule.BaseConfidence, findings[0].Confidence)
				assert.Contains(t, tt.content, findings[0].Match)
			})
		}
	}

	for _, rule := range catalog.SecretRules() {
		assert.True(t, covered[rule.Type], "no sample for rule %q", rule.Type)
	}
}

func TestScanAdjusters(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		confidence int
	}{
		{name: "suggestive name raises", content: `const apiKey = "` + awsRandomKey + `";`, confidence: 100},
		{name: "low entropy lowers", content: `x = ` + awsLowEntropy, confidence: 65},
		{name: "low entropy beats name", content: `const secretKey = "` + awsLowEntropy + `";`, confidence: 65},
		{name: "placeholder in literal", content: `const region = "sample-` + awsRandomKey + `";`, confidence: 70},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := byType(newSecretScanner().Scan(tt.content, "f.js"), "AWS Access Key")
			require.Len(t, findings, 1)
			assert.Equal(t, tt.confidence, findings[0].Confidence)
		})
	}
}

func TestScanNameInPatternNotCountedTwice(t *testing.T) {
	content := `const apiKey = "` + awsRandomKey + `";`

	findings := byType(newSecretScanner().Scan(content, "f.js"), "Generic API Key")

	require.Len(t, findings, 1)
	assert.Equal(t, awsRandomKey, findings[0].Match)
	assert.Equal(t, 55, findings[0].Confidence)
}

func TestScanKeepsDuplicates(t *testing.T) {
	content := githubToken + "\n" + githubToken

	findings := byType(newSecretScanner().Scan(content, "f.js"), "GitHub Token")

	assert.Len(t, findings, 2)
}

func TestScanEmptyAndBinaryLikeContent(t *testing.T) {
	s := newSecretScanner()
	assert.Empty(t, s.Scan("", "f.js"))
	assert.NotPanics(t, func() { s.Scan("\x00\xff\xfe"+strings.Repeat("\x80", 100), "f.js") })
}

func TestScanIdempotentAndBounded(t *testing.T) {
	content := strings.Join([]string{
		`const key = "` + awsExampleKey + `";`,
		`const apiKey = "` + awsRandomKey + `";`,
		`headers: {Authorization: "Bearer ` + githubToken + `"}`,
		`password: "hunter2hunter2"`,
		stripeKey,
		privateKey,
	}, "\n")

	s := newSecretScanner()
	first := s.Scan(content, "f.js")
	second := s.Scan(content, "f.js")

	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
	for _, f := range first {
		assert.GreaterOrEqual(t, f.Confidence, 0, f.Type)
		assert.LessOrEqual(t, f.Confidence, 100, f.Type)
		assert.Contains(t, content, f.Match)
	}
}

func TestScanRuleTimeoutTruncates(t *testing.T) {
	content := strings.Repeat(githubToken+"\n", 500)

	full := newSecretScanner().Scan(content, "f.js")
	truncated := NewSecretScanner(rules.Default(), Options{RuleTimeout: 1}).Scan(content, "f.js")

	assert.LessOrEqual(t, len(truncated), len(full))
}
