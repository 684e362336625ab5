// Command echoclient dials an echoserver instance over TCP, issues one
// unary Echo call, then one Numbers stream call, and prints both
// results.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"aeronrpc/client"
	"aeronrpc/loadbalance"
	"aeronrpc/pending"
	"aeronrpc/registry"
	"aeronrpc/rpcconfig"
	"aeronrpc/serializer"
	"aeronrpc/transport"
)

type echoPayload struct {
	Text string `json:"text"`
}

func main() {
	addr := flag.String("addr", "localhost:9090", "echoserver address")
	message := flag.String("message", "Hello RPC!", "payload to echo")
	count := flag.Int("n", 5, "how many values to request from Numbers")
	flag.Parse()

	resolver := registry.NewStaticResolver()
	resolver.Register("Arith", registry.ServiceEndpoint{ID: "1", Channel: *addr, Weight: 1})

	cli, err := client.NewClient(transport.TCPDialer{}, resolver, &loadbalance.RoundRobin{}, nil, rpcconfig.DefaultClientConfig())
	if err != nil {
		log.Fatalf("echoclient: new client: %v", err)
	}
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	codec := serializer.JSON{}
	reqBytes, err := codec.Serialize(echoPayload{Text: *message})
	if err != nil {
		log.Fatalf("echoclient: encode Echo payload: %v", err)
	}
	respBytes, err := cli.Call(ctx, "Arith", "Echo", reqBytes)
	if err != nil {
		log.Fatalf("echoclient: Echo call: %v", err)
	}
	var resp echoPayload
	if err := codec.Deserialize(respBytes, &resp); err != nil {
		log.Fatalf("echoclient: decode Echo reply: %v", err)
	}
	fmt.Printf("Echo: %s\n", resp.Text)

	done := make(chan error, 1)
	sink := printSink{done: done}
	if err := cli.Stream(ctx, "Arith", "Numbers", []byte{byte(*count)}, sink); err != nil {
		log.Fatalf("echoclient: Numbers stream: %v", err)
	}
	if err := <-done; err != nil {
		log.Fatalf("echoclient: Numbers stream failed: %v", err)
	}
}

type printSink struct {
	done chan error
}

func (s printSink) OnNext(payload []byte) {
	if len(payload) > 0 {
		fmt.Printf("Numbers: %d\n", payload[0])
	}
}

func (s printSink) OnError(err error) { s.done <- err }
func (s printSink) OnComplete()       { s.done <- nil }

var _ pending.StreamSink = printSink{}
