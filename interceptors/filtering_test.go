package interceptors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sladdky/ah-mqttrouter/messaging"
)

func TestFilteringInterceptor(t *testing.T) {
	t.Run("topic filter passes matching topics", func(t *testing.T) {
		var called bool
		transport := route(t,
			NewFilteringInterceptor(NewTopicFilter("sensors/+/temp", "alerts/#"), SkipSilently, nil),
			terminal(&called),
		)

		transport.deliver(messaging.Delivery{Topic: "sensors/a/temp"})
		assert.True(t, called)

		called = false
		transport.deliver(messaging.Delivery{Topic: "sensors/a/humidity"})
		assert.False(t, called)

		transport.deliver(messaging.Delivery{Topic: "alerts"})
		assert.True(t, called)
	})

	t.Run("skip with error", func(t *testing.T) {
		var result error
		transport := route(t,
			observe(&result),
			NewFilteringInterceptor(ValidPayloadFilter{}, SkipWithError, nil),
		)

		transport.deliver(messaging.Delivery{Topic: "a", Payload: []byte("{broken")})

		assert.ErrorContains(t, result, "message filtered: topic=a")
	})

	t.Run("filter errors are wrapped", func(t *testing.T) {
		var result error
		failing := MessageFilterFunc(func(req *messaging.Request) (bool, error) {
			return false, errors.New("lookup failed")
		})
		transport := route(t, observe(&result), NewFilteringInterceptor(failing, SkipSilently, nil))

		transport.deliver(messaging.Delivery{Topic: "a"})

		assert.ErrorContains(t, result, "filter error: lookup failed")
	})
}

func TestCombinedFilters(t *testing.T) {
	yes := MessageFilterFunc(func(req *messaging.Request) (bool, error) { return true, nil })
	no := MessageFilterFunc(func(req *messaging.Request) (bool, error) { return false, nil })
	req := &messaging.Request{Topic: "a"}

	tests := []struct {
		name   string
		filter MessageFilter
		want   bool
	}{
		{"and of all true", NewCompositeFilter(yes, yes), true},
		{"and with one false", NewCompositeFilter(yes, no), false},
		{"empty and", NewCompositeFilter(), true},
		{"or with one true", NewOrFilter(no, yes), true},
		{"or of all false", NewOrFilter(no, no), false},
		{"empty or", NewOrFilter(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.filter.ShouldProcess(req)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConditionalInterceptor(t *testing.T) {
	var tagged []string
	tagger := NewInterceptorFunc("Tagger", func(req *messaging.Request, res *messaging.Response, next messaging.Next) error {
		tagged = append(tagged, req.Topic)
		return next(nil, nil)
	})
	var called bool
	conditional := NewConditionalInterceptor(NewTopicFilter("admin/#"), tagger)
	transport := route(t, conditional, terminal(&called))

	transport.deliver(messaging.Delivery{Topic: "admin/reset"})
	transport.deliver(messaging.Delivery{Topic: "user/login"})

	assert.Equal(t, []string{"admin/reset"}, tagged)
	assert.True(t, called)
	assert.Equal(t, "ConditionalInterceptor[Tagger]", conditional.Name())
}

func TestContextEnrichment(t *testing.T) {
	enricher := ContextEnricherFunc(func(ic *InterceptorContext, req *messaging.Request) error {
		ic.Set("tenant", "acme")
		return nil
	})
	var tenant string
	var called bool

	transport := route(t,
		NewContextEnrichmentInterceptor(enricher),
		NewFilteringInterceptor(NewContextBasedFilter("tenant", "acme"), SkipSilently, nil),
		messaging.HandlerFunc(func(req *messaging.Request, res *messaging.Response, next messaging.Next) error {
			ic, ok := GetInterceptorContext(req.Context())
			if ok {
				tenant, _ = ic.GetString("tenant")
			}
			return next(nil, nil)
		}),
		terminal(&called),
	)

	transport.deliver(messaging.Delivery{Topic: "a"})

	assert.Equal(t, "acme", tenant)
	assert.True(t, called)
}

func TestContextBasedFilterWithoutContext(t *testing.T) {
	ok, err := NewContextBasedFilter("k", "v").ShouldProcess(&messaging.Request{})

	assert.NoError(t, err)
	assert.False(t, ok)
}
