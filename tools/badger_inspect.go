// badger_inspect dumps the sync core's tables (claim:, identity:, msg:)
// for debugging takeover disputes and message ordering.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"

	"chat-sync/repositories"
)

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	prefix := flag.String("prefix", "claim:", "Prefix to scan (claim:, identity:, msg:)")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).WithReadOnly(true).WithLoggingLevel(badger.ERROR))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(headerFor(*prefix))
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(v []byte) error {
				row, err := rowFor(*prefix, key, v)
				if err != nil {
					// Log and keep scanning instead of stopping the dump
					fmt.Printf("Error unmarshaling key %s: %v\n", key, err)
					return nil
				}
				table.Append(row)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal("Scan failed: ", err)
	}

	table.Render()
}

func headerFor(prefix string) []string {
	switch {
	case strings.HasPrefix(prefix, "claim:"):
		return []string{"Key", "Session ID", "Last Heartbeat", "Host", "PID"}
	case strings.HasPrefix(prefix, "identity:"):
		return []string{"Key", "Created At", "Last Login"}
	default:
		return []string{"Key", "Server ID", "Author", "Created At", "Text"}
	}
}

func rowFor(prefix, key string, value []byte) ([]string, error) {
	switch {
	case strings.HasPrefix(prefix, "claim:"):
		var claim repositories.StoredClaim
		if err := json.Unmarshal(value, &claim); err != nil {
			return nil, err
		}
		return []string{key, claim.SessionID, claim.LastHeartbeat.String(), claim.Hostname, fmt.Sprint(claim.PID)}, nil
	case strings.HasPrefix(prefix, "identity:"):
		var record repositories.StoredIdentity
		if err := json.Unmarshal(value, &record); err != nil {
			return nil, err
		}
		return []string{key, record.CreatedAt.String(), record.LastLogin.String()}, nil
	default:
		var msg repositories.StoredMessage
		if err := json.Unmarshal(value, &msg); err != nil {
			return nil, err
		}
		return []string{key, msg.ServerID, msg.Author, msg.CreatedAt.String(), msg.Text}, nil
	}
}
