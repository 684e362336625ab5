package transport

import (
	"context"
	"testing"
	"time"
)

func TestTCPOfferPollRoundTrip(t *testing.T) {
	ln, err := ListenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan struct{})
	var serverSub Subscription
	go func() {
		_, sub, err := ln.Accept()
		if err != nil {
			t.Error(err)
			return
		}
		serverSub = sub
		close(accepted)
	}()

	dialer := TCPDialer{}
	clientPub, _, err := dialer.Dial(context.Background(), Channel{Addr: ln.Addr()})
	if err != nil {
		t.Fatal(err)
	}
	<-accepted

	if _, err := clientPub.Offer([]byte("hello")); err != nil {
		t.Fatal(err)
	}

	var got []byte
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := serverSub.Poll(func(data []byte) { got = append([]byte(nil), data...) }, 10)
		if err != nil {
			t.Fatal(err)
		}
		if n > 0 {
			break
		}
	}
	if string(got) != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestTCPPollReturnsZeroWhenIdle(t *testing.T) {
	ln, err := ListenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan Subscription, 1)
	go func() {
		_, sub, err := ln.Accept()
		if err == nil {
			accepted <- sub
		}
	}()

	dialer := TCPDialer{}
	_, _, err = dialer.Dial(context.Background(), Channel{Addr: ln.Addr()})
	if err != nil {
		t.Fatal(err)
	}
	sub := <-accepted

	n, err := sub.Poll(func([]byte) {}, 10)
	if err != nil {
		t.Fatalf("unexpected error on idle poll: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 fragments on idle poll, got %d", n)
	}
}

func TestTCPFragmentLimitCapsOneCall(t *testing.T) {
	ln, err := ListenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan Subscription, 1)
	go func() {
		_, sub, err := ln.Accept()
		if err == nil {
			accepted <- sub
		}
	}()

	dialer := TCPDialer{}
	pub, _, err := dialer.Dial(context.Background(), Channel{Addr: ln.Addr()})
	if err != nil {
		t.Fatal(err)
	}
	sub := <-accepted

	for i := 0; i < 5; i++ {
		if _, err := pub.Offer([]byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
	}

	time.Sleep(50 * time.Millisecond) // let all five frames land in the OS buffer
	n, err := sub.Poll(func([]byte) {}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("expected fragment limit to cap delivery at 3, got %d", n)
	}
}
