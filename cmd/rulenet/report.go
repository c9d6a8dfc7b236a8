package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/c360/rulenet/agenda"
	"github.com/c360/rulenet/linking"
	"github.com/c360/rulenet/network"
	"github.com/c360/rulenet/pkg/cache"
)

// Report describes the materialised layout of every instance.
type Report struct {
	Network     string           `json:"network" yaml:"network"`
	Fingerprint string           `json:"fingerprint" yaml:"fingerprint"`
	Nodes       int              `json:"nodes" yaml:"nodes"`
	Instances   []InstanceReport `json:"instances" yaml:"instances"`

	// PrototypeCache is set when a process-local cache holds the prototypes.
	PrototypeCache *cache.Summary `json:"prototype_cache,omitempty" yaml:"prototype_cache,omitempty"`
}

// InstanceReport is the layout of one engine instance.
type InstanceReport struct {
	ID       string          `json:"id" yaml:"id"`
	Segments []SegmentReport `json:"segments" yaml:"segments"`
	Paths    []PathReport    `json:"paths" yaml:"paths"`
	Events   int             `json:"events" yaml:"events"`
	Linked   []string        `json:"linked_rules,omitempty" yaml:"linked_rules,omitempty"`
}

// SegmentReport is one segment memory.
type SegmentReport struct {
	ID         int      `json:"id" yaml:"id"`
	Root       string   `json:"root" yaml:"root"`
	Tip        string   `json:"tip" yaml:"tip"`
	EndNode    string   `json:"end_node,omitempty" yaml:"end_node,omitempty"`
	Members    []string `json:"members" yaml:"members"`
	Pos        int      `json:"pos" yaml:"pos"`
	TestMask   string   `json:"test_mask" yaml:"test_mask"`
	LinkedMask string   `json:"linked_mask" yaml:"linked_mask"`
	Paths      []int    `json:"paths" yaml:"paths"`
	Restored   bool     `json:"restored" yaml:"restored"`
}

// PathReport is one path memory.
type PathReport struct {
	ID         int    `json:"id" yaml:"id"`
	End        string `json:"end" yaml:"end"`
	Rule       string `json:"rule,omitempty" yaml:"rule,omitempty"`
	Subnetwork bool   `json:"subnetwork" yaml:"subnetwork"`
	Segments   []int  `json:"segments" yaml:"segments"`
	TestMask   string `json:"test_mask" yaml:"test_mask"`
	Linked     bool   `json:"linked" yaml:"linked"`
}

func nodeName(net *network.Network, id network.NodeID) string {
	if id == network.NoNode {
		return ""
	}
	if n := net.Node(id); n != nil && n.Name != "" {
		return n.Name
	}
	return fmt.Sprintf("#%d", id)
}

func mask(m uint64) string {
	return fmt.Sprintf("%#b", m)
}

func buildReport(net *network.Network, instances []*linking.Instance, recorders []*agenda.Recorder) Report {
	r := Report{Network: net.ID(), Fingerprint: net.Fingerprint(), Nodes: net.Len()}

	for i, in := range instances {
		ir := InstanceReport{ID: in.ID()}
		for _, s := range in.Segments() {
			sr := SegmentReport{
				ID:         int(s.ID),
				Root:       nodeName(net, s.Root),
				Tip:        nodeName(net, s.Tip),
				EndNode:    nodeName(net, s.EndNode),
				Members:    make([]string, 0, len(s.Members)),
				Pos:        s.Pos,
				TestMask:   mask(s.AllLinkedTestMask),
				LinkedMask: mask(s.LinkedMask),
				Paths:      make([]int, 0, len(s.Paths)),
				Restored:   s.Restored,
			}
			for _, m := range s.Members {
				sr.Members = append(sr.Members, nodeName(net, m))
			}
			for _, p := range s.Paths {
				sr.Paths = append(sr.Paths, int(p))
			}
			ir.Segments = append(ir.Segments, sr)
		}
		for _, p := range in.Paths() {
			pr := PathReport{
				ID:         int(p.ID),
				End:        nodeName(net, p.End),
				Rule:       p.Rule,
				Subnetwork: p.Subnetwork,
				Segments:   make([]int, 0, len(p.Segments)),
				TestMask:   mask(p.AllLinkedTestMask),
				Linked:     p.Linked,
			}
			for _, s := range p.Segments {
				pr.Segments = append(pr.Segments, int(s))
			}
			ir.Paths = append(ir.Paths, pr)
		}
		if i < len(recorders) && recorders[i] != nil {
			ir.Events = len(recorders[i].Events())
			ir.Linked = recorders[i].Linked()
		}
		r.Instances = append(r.Instances, ir)
	}
	return r
}

func writeReport(w io.Writer, r Report, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return writeText(w, r)
	}
}

func writeText(w io.Writer, r Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "network %s (%s), %d nodes\n", r.Network, r.Fingerprint, r.Nodes)
	if c := r.PrototypeCache; c != nil {
		fmt.Fprintf(tw, "prototype cache: %d entries, %d hits, %d misses, %d sets, hit ratio %.2f\n",
			c.Size, c.Hits, c.Misses, c.Sets, c.HitRatio)
	}

	for _, in := range r.Instances {
		fmt.Fprintf(tw, "\ninstance %s\n", in.ID)
		fmt.Fprintln(tw, "SEG\tPOS\tROOT\tTIP\tEND\tTEST\tLINKED\tPATHS\tRESTORED\tMEMBERS")
		for _, s := range in.Segments {
			fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\t%s\t%v\t%t\t%s\n",
				s.ID, s.Pos, s.Root, s.Tip, dash(s.EndNode), s.TestMask, s.LinkedMask,
				s.Paths, s.Restored, strings.Join(s.Members, " "))
		}
		fmt.Fprintln(tw, "PATH\tEND\tRULE\tSUBNET\tSEGMENTS\tTEST\tLINKED")
		for _, p := range in.Paths {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%v\t%s\t%t\n",
				p.ID, p.End, dash(p.Rule), p.Subnetwork, p.Segments, p.TestMask, p.Linked)
		}
		if in.Events > 0 {
			fmt.Fprintf(tw, "events: %d, linked rules: %s\n", in.Events, strings.Join(in.Linked, ", "))
		}
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
