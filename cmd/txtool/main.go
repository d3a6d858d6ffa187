// Copyright (c) 2024-2026 The txforge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// txtool is an offline helper around the raw-transaction core: it
// decodes serialized transactions, builds unsigned ones, and reads and
// writes a local transaction index, all without touching any chain
// state.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/jessevdk/go-flags"

	"github.com/txforge/txforge/rpc/rawapi"
	"github.com/txforge/txforge/txindex"
	"github.com/txforge/txforge/txwire"
)

// Flags.
var opts = struct {
	Net     string   `long:"net" description:"Network: mainnet, testnet3, regtest" default:"mainnet"`
	Decode  string   `long:"decode" description:"Hex transaction to decode"`
	Create  bool     `long:"create" description:"Build an unsigned transaction from --in/--out"`
	Inputs  []string `long:"in" description:"Input as txid:vout[:sequence]"`
	Outputs []string `long:"out" description:"Output as address:amount or data:hex"`
	Lock    int64    `long:"locktime" description:"Lock time" default:"0"`
	RBF     bool     `long:"rbf" description:"Signal replaceability"`
	Index   string   `long:"index" description:"Path to a transaction index database"`
	Store   string   `long:"store" description:"Hex transaction to record in the index"`
	Get     string   `long:"get" description:"Txid to fetch from the index"`
}{}

func netParams(name string) (*chaincfg.Params, error) {
	switch name {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	}
	return nil, fmt.Errorf("unknown network %q", name)
}

func parseInput(s string) (rawapi.InputParam, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return rawapi.InputParam{}, fmt.Errorf("bad input %q, want "+
			"txid:vout[:sequence]", s)
	}
	var in rawapi.InputParam
	in.Txid = parts[0]
	if _, err := fmt.Sscan(parts[1], &in.Vout); err != nil {
		return rawapi.InputParam{}, fmt.Errorf("bad vout in %q: %v", s, err)
	}
	if len(parts) == 3 {
		var seq int64
		if _, err := fmt.Sscan(parts[2], &seq); err != nil {
			return rawapi.InputParam{}, fmt.Errorf("bad sequence in "+
				"%q: %v", s, err)
		}
		in.Sequence = &seq
	}
	return in, nil
}

func parseOutput(s string) (rawapi.OutputParam, error) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return rawapi.OutputParam{}, fmt.Errorf("bad output %q, want "+
			"address:amount or data:hex", s)
	}
	key, value := s[:idx], s[idx+1:]
	if key == "data" {
		return rawapi.OutputParam{Data: value, IsData: true}, nil
	}
	return rawapi.OutputParam{Address: key, Amount: value}, nil
}

func run() error {
	params, err := netParams(opts.Net)
	if err != nil {
		return err
	}

	var store *txindex.Store
	if opts.Index != "" {
		store, err = txindex.Open(opts.Index)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	cfg := &rawapi.Config{Params: params}
	if store != nil {
		cfg.Index = store
	}
	api := rawapi.New(cfg)

	switch {
	case opts.Decode != "":
		decoded, err := api.DecodeRawTransaction(opts.Decode, true)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(decoded, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil

	case opts.Create:
		inputs := make([]rawapi.InputParam, 0, len(opts.Inputs))
		for _, s := range opts.Inputs {
			in, err := parseInput(s)
			if err != nil {
				return err
			}
			inputs = append(inputs, in)
		}
		outputs := make([]rawapi.OutputParam, 0, len(opts.Outputs))
		for _, s := range opts.Outputs {
			out, err := parseOutput(s)
			if err != nil {
				return err
			}
			outputs = append(outputs, out)
		}
		lockTime := opts.Lock
		rbf := opts.RBF
		hexTx, err := api.CreateRawTransaction(
			inputs, outputs, &lockTime, &rbf,
		)
		if err != nil {
			return err
		}
		fmt.Println(hexTx)
		return nil

	case opts.Store != "":
		if store == nil {
			return fmt.Errorf("--store requires --index")
		}
		tx, err := txwire.NewTxFromHex(opts.Store, true)
		if err != nil {
			return err
		}
		if err := store.Put(tx); err != nil {
			return err
		}
		fmt.Println(tx.TxHash())
		return nil

	case opts.Get != "":
		if store == nil {
			return fmt.Errorf("--get requires --index")
		}
		result, err := api.GetRawTransaction(opts.Get, true, "")
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(result.Decoded, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	return fmt.Errorf("nothing to do: pass --decode, --create, " +
		"--store or --get")
}

func main() {
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
