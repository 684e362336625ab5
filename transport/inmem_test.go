package transport

import "testing"

func TestInmemPairOfferPoll(t *testing.T) {
	pub, sub := NewInmemPair()

	if res, err := pub.Offer([]byte("ping")); err != nil || res != Accepted {
		t.Fatalf("offer: res=%v err=%v", res, err)
	}

	var got []byte
	n, err := sub.Poll(func(data []byte) { got = data }, 10)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || string(got) != "ping" {
		t.Fatalf("got n=%d data=%q", n, got)
	}
}

func TestInmemBackPressureWhenQueueFull(t *testing.T) {
	pub, sub := NewInmemPair()

	for i := 0; i < defaultInmemCapacity; i++ {
		res, err := pub.Offer([]byte{byte(i)})
		if err != nil || res != Accepted {
			t.Fatalf("offer %d: res=%v err=%v", i, res, err)
		}
	}

	res, err := pub.Offer([]byte("overflow"))
	if err != nil {
		t.Fatal(err)
	}
	if res != BackPressured {
		t.Fatalf("expected BackPressured once queue is full, got %v", res)
	}

	// Draining one slot should let the next offer through.
	sub.Poll(func([]byte) {}, 1)
	res, err = pub.Offer([]byte("now fits"))
	if err != nil || res != Accepted {
		t.Fatalf("offer after drain: res=%v err=%v", res, err)
	}
}

func TestInmemClosedPublicationRejectsOffer(t *testing.T) {
	pub, _ := NewInmemPair()
	pub.Close()
	res, err := pub.Offer([]byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if res != Closed {
		t.Fatalf("expected Closed after Close, got %v", res)
	}
}

func TestInmemBrokerDialAccept(t *testing.T) {
	broker := NewInmemBroker()
	ln := broker.Listen("svc-a")

	accepted := make(chan struct{})
	var serverPub Publication
	var serverSub Subscription
	go func() {
		p, s, err := ln.Accept()
		if err != nil {
			t.Error(err)
			return
		}
		serverPub, serverSub = p, s
		close(accepted)
	}()

	dialer := InmemDialer{Broker: broker}
	clientPub, clientSub, err := dialer.Dial(nil, Channel{Addr: "svc-a"})
	if err != nil {
		t.Fatal(err)
	}
	<-accepted

	if _, err := clientPub.Offer([]byte("request")); err != nil {
		t.Fatal(err)
	}
	var gotReq []byte
	if _, err := serverSub.Poll(func(d []byte) { gotReq = d }, 1); err != nil {
		t.Fatal(err)
	}
	if string(gotReq) != "request" {
		t.Fatalf("server got %q", gotReq)
	}

	if _, err := serverPub.Offer([]byte("reply")); err != nil {
		t.Fatal(err)
	}
	var gotReply []byte
	if _, err := clientSub.Poll(func(d []byte) { gotReply = d }, 1); err != nil {
		t.Fatal(err)
	}
	if string(gotReply) != "reply" {
		t.Fatalf("client got %q", gotReply)
	}
}
