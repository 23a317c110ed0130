package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() *domain.ResolvedContext {
	return domain.NewResolvedContext(domain.RequestContext{OrgID: "acme"}, []domain.ResolvedValue{
		{
			Key:    "invoice.approve",
			Kind:   domain.ValueBelief,
			Scope:  domain.Scope{Type: domain.ScopeOrg, ID: "acme"},
			Belief: &domain.Belief{Key: "invoice.approve", Statement: "Approve routine invoices", Strength: 0.76},
		},
		{
			Key:   "fiscal_year_end",
			Kind:  domain.ValueFact,
			Scope: domain.Scope{Type: domain.ScopeOrg, ID: "acme"},
			Fact:  &domain.Fact{FactKey: "fiscal_year_end", Statement: "Jun30"},
		},
	})
}

func TestParseAppraisal_StripsFences(t *testing.T) {
	raw := "```json\n{\"intent\":\"pay\",\"belief_keys\":[\"a\"],\"primary_key\":\"b\"}\n```"
	a, err := parseAppraisal(raw)
	require.NoError(t, err)
	assert.Equal(t, "pay", a.Intent)
	assert.Equal(t, []string{"b", "a"}, a.BeliefKeys)
}

func TestParseAppraisal_Invalid(t *testing.T) {
	_, err := parseAppraisal("not json")
	assert.Error(t, err)
}

func TestBuildAppraisalPrompt_RendersContext(t *testing.T) {
	p := buildAppraisalPrompt(domain.AppraisalRequest{Prompt: "approve invoice 42", Context: testContext()})
	assert.Contains(t, p, "[BELIEF invoice.approve strength=0.76] Approve routine invoices")
	assert.Contains(t, p, "[FACT fiscal_year_end] Jun30")
	assert.Contains(t, p, "approve invoice 42")
}

func TestAnthropicClient_Appraise(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.True(t, strings.Contains(req.Messages[0].Content, "invoice.approve"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{
				"type": "text",
				"text": `{"intent":"approve_invoice","belief_keys":["invoice.approve"],"primary_key":"invoice.approve"}`,
			}},
		})
	}))
	defer srv.Close()

	c := NewAnthropicClient("test-key")
	c.url = srv.URL

	a, err := c.Appraise(context.Background(), domain.AppraisalRequest{Prompt: "approve", Context: testContext()})
	require.NoError(t, err)
	assert.Equal(t, "approve_invoice", a.Intent)
	assert.Equal(t, "invoice.approve", a.PrimaryKey)
}

func TestOpenAIClient_AppraiseHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("k")
	c.url = srv.URL

	_, err := c.Appraise(context.Background(), domain.AppraisalRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(ProviderOpenAI, "")
	assert.Error(t, err)

	c, err := NewClient(ProviderMock, "")
	require.NoError(t, err)
	assert.IsType(t, &MockClient{}, c)

	_, err = NewClient("gemini", "key")
	assert.Error(t, err)
}
