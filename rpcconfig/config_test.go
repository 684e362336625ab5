package rpcconfig

import "testing"

func TestClientConfigValidateFillsDefaults(t *testing.T) {
	c := ClientConfig{Timeout: 200}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	if c.ReaperInterval != c.Timeout {
		t.Fatalf("expected ReaperInterval to default to Timeout, got %v", c.ReaperInterval)
	}
	if c.FragmentLimit != 10 {
		t.Fatalf("expected default FragmentLimit 10, got %d", c.FragmentLimit)
	}
}

func TestClientConfigValidateRejectsNonPositiveTimeout(t *testing.T) {
	c := ClientConfig{}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for zero Timeout")
	}
}

func TestServerConfigValidateRejectsCoreExceedingMax(t *testing.T) {
	c := ServerConfig{CoreWorkers: 10, MaxWorkers: 4, QueueCapacity: 1}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error when CoreWorkers exceeds MaxWorkers")
	}
}

func TestServerConfigValidateFillsDefaults(t *testing.T) {
	c := ServerConfig{MaxWorkers: 4, QueueCapacity: 10}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	if c.CoreWorkers != 4 {
		t.Fatalf("expected CoreWorkers to default to MaxWorkers, got %d", c.CoreWorkers)
	}
	if c.KeepAlive == 0 {
		t.Fatal("expected default KeepAlive to be set")
	}
}

func TestDefaultConfigsValidate(t *testing.T) {
	cc := DefaultClientConfig()
	if err := cc.Validate(); err != nil {
		t.Fatalf("default client config should validate: %v", err)
	}
	sc := DefaultServerConfig()
	if err := sc.Validate(); err != nil {
		t.Fatalf("default server config should validate: %v", err)
	}
}
