package cmd

import (
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/spf13/cobra"

	"firestige.xyz/twinport/internal/core"
)

var (
	injectTarget string
	injectSrc    string
	injectDst    string
	injectCount  int
	injectGap    time.Duration
	injectText   string
)

var injectCmd = &cobra.Command{
	Use:   "inject",
	Short: "Craft an Ethernet frame and send it into a simulator port",
	Long: `
Build a raw Ethernet frame and send it as a UDP datagram to a simulator
port's listen address, the way an external peer would put it on the wire.

Examples:
  twinport inject                                     # one broadcast frame into port1
  twinport inject --target 127.0.0.1:10002 \
      --src 02:00:00:00:00:aa --dst 02:00:00:00:00:bb # unicast into port2
  twinport inject --count 10 --gap 100ms              # paced burst
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		srcMAC, err := core.ParseMAC(injectSrc)
		if err != nil {
			return fmt.Errorf("bad --src: %w", err)
		}
		dstMAC, err := core.ParseMAC(injectDst)
		if err != nil {
			return fmt.Errorf("bad --dst: %w", err)
		}

		frame, err := buildFrame(srcMAC, dstMAC, []byte(injectText))
		if err != nil {
			return err
		}

		conn, err := net.Dial("udp", injectTarget)
		if err != nil {
			return fmt.Errorf("failed to reach simulator port at %s: %w", injectTarget, err)
		}
		defer conn.Close()

		for i := 0; i < injectCount; i++ {
			if _, err := conn.Write(frame); err != nil {
				return fmt.Errorf("send failed: %w", err)
			}
			fmt.Printf("sent %d bytes %s -> %s via %s\n", len(frame), srcMAC, dstMAC, injectTarget)
			if i+1 < injectCount {
				time.Sleep(injectGap)
			}
		}
		return nil
	},
}

// buildFrame serializes an Ethernet frame with gopacket, padded to the
// 60-byte minimum (FCS is the MAC's job).
func buildFrame(src, dst core.MAC, payload []byte) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr(src[:]),
		DstMAC:       net.HardwareAddr(dst[:]),
		EthernetType: layers.EthernetTypeLLC,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("frame serialization failed: %w", err)
	}
	frame := buf.Bytes()
	if len(frame) < 60 {
		padded := make([]byte, 60)
		copy(padded, frame)
		frame = padded
	}
	return frame, nil
}

func init() {
	injectCmd.Flags().StringVar(&injectTarget, "target", "127.0.0.1:10001", "simulator port listen address")
	injectCmd.Flags().StringVar(&injectSrc, "src", "02:00:00:00:00:aa", "source MAC")
	injectCmd.Flags().StringVar(&injectDst, "dst", "ff:ff:ff:ff:ff:ff", "destination MAC")
	injectCmd.Flags().IntVar(&injectCount, "count", 1, "number of frames to send")
	injectCmd.Flags().DurationVar(&injectGap, "gap", 100*time.Millisecond, "delay between frames")
	injectCmd.Flags().StringVar(&injectText, "payload", "TEST PACKET", "payload text")
}
