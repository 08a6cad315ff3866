package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"salechain/cmd/internal/passphrase"
)

const tokenEnv = "SALE_RPC_TOKEN"

type cli struct {
	endpoint string
	token    string
	jsonOut  bool
	yamlOut  bool
	client   *http.Client
	nonce    func() uint64
	stdout   io.Writer
	stderr   io.Writer

	// adminToken resolves the bearer token for scoped methods when token is
	// empty.
	adminToken func() (string, error)
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message) }

func main() {
	c := &cli{
		endpoint:   defaultRPCEndpoint(),
		jsonOut:    !term.IsTerminal(int(os.Stdout.Fd())),
		client:     &http.Client{Timeout: 30 * time.Second},
		nonce:      func() uint64 { return uint64(time.Now().UnixNano()) },
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		adminToken: passphrase.NewSource(tokenEnv, "admin token").Get,
	}
	os.Exit(c.run(os.Args[1:]))
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("SALE_RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func (c *cli) run(args []string) int {
	args, err := c.applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(c.stderr, err)
		return 1
	}
	if len(args) == 0 {
		fmt.Fprintln(c.stderr, usage())
		return 1
	}
	switch args[0] {
	case "keygen":
		return c.runKeygen(args[1:])
	case "address":
		return c.runAddress(args[1:])
	case "balance":
		return c.runBalance(args[1:])
	case "airdrop":
		return c.runAirdrop(args[1:])
	case "head":
		return c.printCall("ledger_head")
	case "receipt":
		if len(args) != 2 {
			return c.fail("usage: receipt <tx-hash>")
		}
		return c.printCall("ledger_getReceipt", args[1])
	case "token":
		return c.runTokenCommand(args[1:])
	case "sale":
		return c.runSaleCommand(args[1:])
	case "help", "-h", "--help":
		fmt.Fprintln(c.stdout, usage())
		return 0
	default:
		fmt.Fprintf(c.stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(c.stderr, usage())
		return 1
	}
}

func (c *cli) applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--rpc":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			c.endpoint = args[i+1]
			i++
		case strings.HasPrefix(arg, "--rpc="):
			c.endpoint = strings.TrimPrefix(arg, "--rpc=")
		case arg == "--json":
			c.jsonOut = true
		case arg == "--yaml":
			c.yamlOut = true
		default:
			out = append(out, arg)
		}
	}
	return out, nil
}

func usage() string {
	return strings.TrimSpace(`Usage:
  salectl [--rpc URL] [--json|--yaml] <command> [flags]

Commands:
  keygen    Generate a key file
  address   Print the address of a key file
  balance   Show the lamports held by an address
  airdrop   Request faucet lamports (needs ` + tokenEnv + `)
  head      Show the committed slot and state root
  receipt   Show a transaction receipt
  token     create-mint | mint-to | balance
  sale      create | fund | get | buy | withdraw | close | purchases | export
`)
}

func (c *cli) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func (c *cli) fail(format string, args ...interface{}) int {
	fmt.Fprintf(c.stderr, "Error: "+format+"\n", args...)
	return 1
}

// call issues a JSON-RPC request and decodes the result into out when out is
// non-nil.
func (c *cli) call(method string, out interface{}, params ...interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(c.endpoint, "/")+"/rpc", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("rpc %s at %s: %w", method, c.endpoint, err)
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode %s response (HTTP %d): %w", method, resp.StatusCode, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = rpcResp.Result
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}

func (c *cli) printCall(method string, params ...interface{}) int {
	var raw json.RawMessage
	if err := c.call(method, &raw, params...); err != nil {
		return c.fail("%v", err)
	}
	return c.print(raw)
}

// print writes v as indented JSON on terminals and compact JSON otherwise.
// --yaml renders YAML instead.
func (c *cli) print(v interface{}) int {
	var (
		data []byte
		err  error
	)
	if c.yamlOut {
		data, err = toYAML(v)
		if err != nil {
			return c.fail("encode output: %v", err)
		}
		fmt.Fprint(c.stdout, string(data))
		return 0
	}
	if raw, ok := v.(json.RawMessage); ok {
		data = raw
		if !c.jsonOut {
			var buf bytes.Buffer
			if json.Indent(&buf, raw, "", "  ") == nil {
				data = buf.Bytes()
			}
		}
	} else if c.jsonOut {
		data, err = json.Marshal(v)
	} else {
		data, err = json.MarshalIndent(v, "", "  ")
	}
	if err != nil {
		return c.fail("encode output: %v", err)
	}
	fmt.Fprintln(c.stdout, string(data))
	return 0
}

// toYAML round-trips v through JSON so field names match the RPC payloads.
func toYAML(v interface{}) ([]byte, error) {
	raw, ok := v.(json.RawMessage)
	if !ok {
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}
	var generic interface{}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&generic); err != nil {
		return nil, err
	}
	return yaml.Marshal(normalizeNumbers(generic))
}

func normalizeNumbers(v interface{}) interface{} {
	switch value := v.(type) {
	case json.Number:
		if n, err := strconv.ParseUint(value.String(), 10, 64); err == nil {
			return n
		}
		if n, err := value.Int64(); err == nil {
			return n
		}
		f, _ := value.Float64()
		return f
	case map[string]interface{}:
		for k, item := range value {
			value[k] = normalizeNumbers(item)
		}
	case []interface{}:
		for i, item := range value {
			value[i] = normalizeNumbers(item)
		}
	}
	return v
}
