package spool

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/good-yellow-bee/alertdb/internal/models"
)

// DecodeAlerts reads either a JSON array of alerts or a sequence of alert
// objects (JSON lines).
func DecodeAlerts(r io.Reader) ([]*models.Alert, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		var alerts []*models.Alert
		if err := dec.Decode(&alerts); err != nil {
			return nil, fmt.Errorf("decode alerts: %w", err)
		}
		for i, a := range alerts {
			if a == nil {
				return nil, fmt.Errorf("decode alert %d: null alert", i)
			}
		}
		return alerts, nil
	}

	var alerts []*models.Alert
	for {
		var a models.Alert
		err := dec.Decode(&a)
		if errors.Is(err, io.EOF) {
			return alerts, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode alert %d: %w", len(alerts), err)
		}
		alerts = append(alerts, &a)
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
