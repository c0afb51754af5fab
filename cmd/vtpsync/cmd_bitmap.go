package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/newtron-network/vtpsync/pkg/vlan"
)

var bitmapSegment int

var bitmapCmd = &cobra.Command{
	Use:   "bitmap",
	Short: "Decode and encode trunk VLAN bitmaps",
	Long: `Decode and encode the 128-octet trunk membership bitmaps used by
vlanTrunkPortVlansEnabled (segment 0) and its 2k/3k/4k companions.

Examples:
  vtpsync bitmap decode 0x00200000
  vtpsync bitmap decode -s 1 0x80
  vtpsync bitmap encode 10,20,1030`,
}

var bitmapDecodeCmd = &cobra.Command{
	Use:   "decode <hex>",
	Short: "Print the VLAN ids set in a segment bitmap",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if bitmapSegment < 0 || bitmapSegment >= vlan.SegmentCount {
			return fmt.Errorf("segment must be 0-%d", vlan.SegmentCount-1)
		}
		raw, err := vlan.ParseHex(args[0])
		if err != nil {
			return err
		}
		positions, err := vlan.Decode(raw)
		if err != nil {
			return err
		}
		ids := vlan.IDs(bitmapSegment, positions)
		if len(ids) == 0 {
			fmt.Println("No VLANs set")
			return nil
		}
		fmt.Printf("%s (%d VLANs)\n", vlan.NewSet(ids...).String(), len(ids))
		return nil
	},
}

var bitmapEncodeCmd = &cobra.Command{
	Use:   "encode <vlans>",
	Short: "Print the segment bitmaps for a VLAN list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		set, err := vlan.ParseList(args[0])
		if err != nil {
			return err
		}
		bySegment := vlan.SplitBySegment(set.Sorted())
		segs := make([]int, 0, len(bySegment))
		for seg := range bySegment {
			segs = append(segs, seg)
		}
		sort.Ints(segs)
		for _, seg := range segs {
			raw, err := vlan.EncodeMany(nil, bySegment[seg], true)
			if err != nil {
				return err
			}
			fmt.Printf("segment %d: %s\n", seg, vlan.FormatHex(raw))
		}
		return nil
	},
}

func init() {
	bitmapDecodeCmd.Flags().IntVarP(&bitmapSegment, "segment", "s", 0, "Segment the bitmap belongs to (0-3)")
	bitmapCmd.AddCommand(bitmapDecodeCmd, bitmapEncodeCmd)
}
