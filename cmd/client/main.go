package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/gookit/color"
	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/linechat/internal/client"
	"github.com/Tyrowin/linechat/internal/server"
)

func main() {
	host := flag.String("host", "", "server address; asked for interactively when empty")
	port := flag.Int("port", server.DefaultPort, "server port")
	flag.Parse()

	input := bufio.NewScanner(os.Stdin)
	if *host == "" {
		fmt.Println(client.AddressQuery)
		if input.Scan() {
			*host = strings.TrimSpace(input.Text())
		}
	}

	conn, err := net.Dial("tcp", net.JoinHostPort(*host, strconv.Itoa(*port)))
	if err != nil {
		logrus.WithError(err).Fatal("Could not connect to the server")
	}

	outcome := client.New(conn, input, os.Stdout).Run()

	fmt.Println(client.Separator)
	switch outcome {
	case client.Left:
		fmt.Println(outcome.Message())
	default:
		color.Red.Println(outcome.Message())
	}
	os.Exit(0)
}
