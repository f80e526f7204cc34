package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"vouchermarket/crypto"
	"vouchermarket/native/dispute"
)

var rpcEndpoint = defaultRPCEndpoint()
var rpcAuthToken = os.Getenv("MARKET_RPC_TOKEN")

const keyPassEnv = "MARKET_KEY_PASS"

func main() {
	args := os.Args[1:]
	var err error
	args, err = applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(args) < 1 {
		printUsage()
		return
	}

	switch args[0] {
	case "generate-key":
		if len(args) < 2 {
			fmt.Println("Error: Please provide an output path.")
			printUsage()
			return
		}
		generateKey(args[1])
	case "address":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a key file.")
			printUsage()
			return
		}
		showAddress(args[1])
	case "sign-resolution":
		if len(args) < 4 {
			fmt.Println("Error: Please provide a key file, an exchange id, and the buyer percentage in bps.")
			printUsage()
			return
		}
		exchangeID, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			fmt.Println("Error: Invalid exchange id.")
			return
		}
		bps, err := strconv.ParseUint(args[3], 10, 32)
		if err != nil {
			fmt.Println("Error: Invalid basis points.")
			return
		}
		signResolution(args[1], exchangeID, uint32(bps))
	case "call":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a method name and optionally a JSON parameter object.")
			printUsage()
			return
		}
		params := "{}"
		if len(args) > 2 {
			params = args[2]
		}
		callMethod(args[1], params)
	default:
		fmt.Printf("Unknown command: %s\n", args[0])
		printUsage()
	}
}

func printUsage() {
	fmt.Println(`Usage: market-cli [--rpc <url>] <command> [arguments]

Commands:
  generate-key <out.json>                       Generate a key and save it as an encrypted keystore file
  address <key.json>                            Print the account address for a keystore file
  sign-resolution <key.json> <exchangeId> <bps> Sign a mutual dispute resolution proposal
  call <method> [params-json]                   Invoke a JSON-RPC method against the market daemon

The keystore passphrase is read from ` + keyPassEnv + `; the RPC bearer token from MARKET_RPC_TOKEN.`)
}

func defaultRPCEndpoint() string {
	if url := strings.TrimSpace(os.Getenv("MARKET_RPC_URL")); url != "" {
		return url
	}
	return "http://127.0.0.1:8645"
}

func applyGlobalFlags(args []string) ([]string, error) {
	remaining := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--rpc":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--rpc requires a URL argument")
			}
			rpcEndpoint = args[i+1]
			i++
		default:
			remaining = append(remaining, args[i])
		}
	}
	return remaining, nil
}

func loadKey(path string) *crypto.PrivateKey {
	key, err := crypto.LoadFromKeystore(path, os.Getenv(keyPassEnv))
	if err != nil {
		fmt.Printf("Error loading key: %v\n", err)
		os.Exit(1)
	}
	return key
}

func generateKey(path string) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Printf("Error generating key: %v\n", err)
		os.Exit(1)
	}
	if err := crypto.SaveToKeystore(path, key, os.Getenv(keyPassEnv)); err != nil {
		fmt.Printf("Error saving keystore: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("New key saved to %s\n", path)
	fmt.Printf("Address: %s\n", key.PubKey().Address())
}

func showAddress(path string) {
	key := loadKey(path)
	fmt.Println(key.PubKey().Address())
}

func signResolution(path string, exchangeID uint64, buyerPercentBps uint32) {
	key := loadKey(path)
	digest := dispute.ResolutionDigest(exchangeID, buyerPercentBps)
	sig, err := key.Sign(digest)
	if err != nil {
		fmt.Printf("Error signing resolution: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("0x%s\n", hex.EncodeToString(sig))
}

func callMethod(method, params string) {
	var paramObj json.RawMessage
	if err := json.Unmarshal([]byte(params), &paramObj); err != nil {
		fmt.Printf("Error: params must be a JSON object: %v\n", err)
		os.Exit(1)
	}
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []json.RawMessage{paramObj},
	})
	if err != nil {
		fmt.Printf("Error building request: %v\n", err)
		os.Exit(1)
	}

	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(payload))
	if err != nil {
		fmt.Printf("Error building request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	if rpcAuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+rpcAuthToken)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error calling %s: %v\n", method, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Printf("Error reading response: %v\n", err)
		os.Exit(1)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return
	}
	fmt.Println(pretty.String())
}
